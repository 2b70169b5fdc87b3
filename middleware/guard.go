// Package middleware provides the HTTP session guard. The guard performs
// the authentication precondition explicitly at the boundary, so guarded
// handlers can assume a verified identity instead of re-checking it.
package middleware

import (
	"context"
	"net/http"
	"strings"

	opaquegate "github.com/opaquegate/opaquegate"
	"github.com/opaquegate/opaquegate/identity"
)

type identityContextKey struct{}
type tokenContextKey struct{}

// IdentityFromContext returns the identity the guard verified for this
// request.
func IdentityFromContext(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(identity.Identity)
	return id, ok
}

// TokenFromContext returns the raw session token the guard accepted.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey{}).(string)
	return token, ok
}

// Guard rejects requests without a valid session token before the handler
// runs. The token is read from the Authorization bearer header.
func Guard(engine *opaquegate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, err := engine.VerifySession(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			ctx = context.WithValue(ctx, tokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
