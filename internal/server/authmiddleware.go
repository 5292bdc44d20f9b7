package server

import (
	"context"
	"net/http"

	"github.com/tjfontaine/kudospace/internal/auth"
	"github.com/tjfontaine/kudospace/internal/domain"
)

type userKey struct{}

// AuthMiddleware resolves the bearer API key to a user. Requests without an
// Authorization header continue anonymously; an invalid key is rejected
// with 401.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			apiKey, err := auth.ExtractAPIKey(r)
			if err != nil {
				AddError(r.Context(), err)
				domain.WriteError(w, domain.ErrUnauthorized("Invalid Authorization header."))
				return
			}

			user, err := authenticator.ValidateAPIKey(apiKey)
			if err != nil {
				AddError(r.Context(), err)
				domain.WriteError(w, domain.ErrUnauthorized("Invalid API key."))
				return
			}

			AddLogField(r.Context(), "user_id", user.ID)
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			domain.WriteError(w, domain.ErrUnauthorized("Authentication required."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *auth.User {
	if u, ok := ctx.Value(userKey{}).(*auth.User); ok {
		return u
	}
	return nil
}
