package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/karingamassive/membership-service/internal/http/response"
	"github.com/karingamassive/membership-service/internal/observability"
	"github.com/karingamassive/membership-service/internal/security"
)

type contextKey string

const (
	IdentityContextKey contextKey = "identity"
)

// AccessVerifier validates access tokens without touching the side store.
type AccessVerifier interface {
	VerifyAccess(raw string) (*security.Claims, error)
}

// Authenticated must run before any other guard. It stores the token's
// identity in the request context.
func Authenticated(verifier AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := security.BearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication failed, login to proceed", nil)
				return
			}
			claims, err := verifier.VerifyAccess(raw)
			if errors.Is(err, security.ErrTokenExpired) {
				observability.RecordAccessTokenValidation(r.Context(), "expired", "bearer")
				response.Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "session expired, login again", nil)
				return
			}
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", "bearer")
				response.Error(w, r, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication failed, login to proceed", nil)
				return
			}
			id, err := claims.Identity()
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", "bearer")
				response.Error(w, r, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication failed, login to proceed", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", "bearer")
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func WithIdentity(ctx context.Context, id security.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, id)
}

func IdentityFromContext(ctx context.Context) (security.Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(security.Identity)
	return id, ok
}
