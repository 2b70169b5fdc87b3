package opaquegate

import (
	"context"

	"github.com/opaquegate/opaquegate/identity"
)

// LoginChallenge is returned by [Engine.LoginStart]: the engine's response
// to forward to the client and the attempt key that must come back with
// the client's finish message.
type LoginChallenge struct {
	Response   []byte
	AttemptKey string
}

// LoginResult is returned by [Engine.LoginFinish] after a successful
// exchange. Token is the platform session token minted by the configured
// [SessionIssuer]; the derived session key itself is never exposed or
// persisted by the core.
type LoginResult struct {
	Identity identity.Identity
	Token    string
}

// SessionIssuer converts a successful login into a platform session and
// validates the tokens it minted. [session.Issuer] is the provided
// implementation; callers may substitute their own.
type SessionIssuer interface {
	Bind(ctx context.Context, id identity.Identity, sessionKey []byte) (string, error)
	Verify(ctx context.Context, token string) (identity.Identity, error)
	Invalidate(ctx context.Context, token string) error
}
