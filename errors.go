package opaquegate

import "errors"

var (
	// ErrIdentityRequired is returned when a request omits the identity value.
	ErrIdentityRequired = errors.New("identity required")
	// ErrPayloadRequired is returned when a request omits the protocol payload.
	ErrPayloadRequired = errors.New("protocol payload required")
	// ErrCredentialExists is returned when registration targets an identity
	// that already holds an active credential.
	ErrCredentialExists = errors.New("identity already registered")
	// ErrNoCredential is returned when login targets an identity without an
	// active credential.
	ErrNoCredential = errors.New("no credential for identity")
	// ErrAttemptNotFound is returned when a login finish presents an attempt
	// key that is unknown, already consumed, or expired. The three cases are
	// deliberately indistinguishable.
	ErrAttemptNotFound = errors.New("login attempt expired or unknown")
	// ErrEngineRejected is the sanitized error returned when the key
	// exchange engine rejects a message or proof. Full detail goes to the
	// audit log, never to the caller.
	ErrEngineRejected = errors.New("key exchange rejected")
	// ErrPersistence is returned when a store write fails after validation
	// passed.
	ErrPersistence = errors.New("credential persistence failed")
	// ErrAttemptStoreUnavailable is returned when the attempt cache backend
	// cannot be reached.
	ErrAttemptStoreUnavailable = errors.New("attempt store unavailable")
	// ErrSessionInvalid is returned when a session token fails verification.
	ErrSessionInvalid = errors.New("invalid session")
	// ErrEngineNotReady is returned when the engine is used before Build
	// wired all dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)
