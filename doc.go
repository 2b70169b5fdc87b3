// Package opaquegate provides the server side of an OPAQUE-style
// password-authenticated key exchange: registration of sealed credential
// envelopes and a two-round-trip login that proves password knowledge
// without ever transmitting a password.
//
// The package is the protocol orchestration layer. It sequences the two
// phases of registration and login, owns the ephemeral per-attempt state
// that must survive between the login round trips, and enforces the
// lifecycle rules around stored credentials. The cryptographic engine,
// the identity directory, the credential store, and session issuance are
// injected collaborators.
//
// # Architecture boundaries
//
// opaquegate is the public surface. It exposes [Engine], [Builder],
// [Config], and value types. The key exchange contract lives in pake/
// (with a gopaque-backed implementation in pake/gopaquengine), store
// contracts in credential/ and identity/ with in-memory and postgres
// backends, session issuance in session/, and the HTTP compatibility
// surface in httpapi/.
//
// # Correctness contracts
//
//   - At most one active credential per identity: enforced by the
//     credential store's atomic CreateIfAbsent, re-checked at commit time
//     because the two registration phases are not atomic together.
//   - At-most-once consumption of login attempts: the attempt cache's
//     get-and-delete is a single atomic operation, so exactly one finish
//     can succeed per attempt key.
//   - No secret leakage on failure: engine errors are logged through the
//     audit pipeline in full and surfaced to callers as sanitized
//     sentinel errors.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
package opaquegate
