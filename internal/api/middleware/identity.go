package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/mcoot/chessrelay/internal/api/apierr"
	"github.com/mcoot/chessrelay/internal/services/identity"
)

type contextKey string

const usernameContextKey contextKey = "username"

// RequireIdentity rejects requests without a verified username
func RequireIdentity(verifier identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := verifier.Verify(r)
			if err != nil {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUsername(r.Context(), username)))
		})
	}
}

// OptionalIdentity attaches the username when one is supplied and valid.
// An invalid credential is still rejected; only a missing one is allowed.
func OptionalIdentity(verifier identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := verifier.Verify(r)
			switch {
			case err == nil:
				r = r.WithContext(WithUsername(r.Context(), username))
			case !errors.Is(err, identity.ErrNoIdentity):
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUsername returns a context carrying the verified username
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameContextKey, username)
}

// Username returns the verified username, or "" for anonymous requests
func Username(ctx context.Context) string {
	username, _ := ctx.Value(usernameContextKey).(string)
	return username
}

// MustUsername returns the verified username or panics
func MustUsername(ctx context.Context) string {
	username := Username(ctx)
	if username == "" {
		panic("no username in context - identity middleware not applied?")
	}
	return username
}
