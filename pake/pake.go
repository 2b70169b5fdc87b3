// Package pake defines the contract between the protocol core and the
// underlying password-authenticated key exchange implementation.
//
// The core treats the engine as a black box: setup secrets, protocol
// messages, envelopes, and login state are all opaque byte strings that
// only the engine (and its client-side counterpart) can interpret.
package pake

import "errors"

// ErrMalformed is returned by engine implementations when an input message
// cannot be parsed or does not belong to the exchange in progress. The
// core maps it to a sanitized rejection; implementations may wrap it with
// detail for the audit log.
var ErrMalformed = errors.New("malformed key exchange message")

// ErrProofFailed is returned by LoginFinish when the client's final
// message does not prove knowledge of the registered password.
var ErrProofFailed = errors.New("key exchange proof failed")

// Engine is the server side of a two-round-trip PAKE.
//
// RegisterFinish receives the setup and identity in addition to the
// client record: stateless engines ignore them, while engines that keep
// per-identity registration state (see gopaquengine) need the identity to
// locate it.
type Engine interface {
	// Register starts a registration exchange and returns the server
	// response to forward to the client.
	Register(setup, request []byte, identity string) ([]byte, error)

	// RegisterFinish completes a registration exchange and returns the
	// sealed envelope to persist.
	RegisterFinish(setup []byte, identity string, record []byte) ([]byte, error)

	// Login starts a login exchange against a stored envelope. It returns
	// the server response for the client and the opaque state the caller
	// must present back to LoginFinish.
	Login(setup, envelope, request []byte, identity string) (response, state []byte, err error)

	// LoginFinish verifies the client's final message against the login
	// state and returns the derived session key material.
	LoginFinish(finish, state []byte) ([]byte, error)
}

// SetupGenerator is implemented by engines that can mint a fresh server
// setup secret. Generation is a deployment-time operation; the running
// engine only ever consumes the secret.
type SetupGenerator interface {
	CreateSetup() ([]byte, error)
}
