package middleware

import (
	"net/http"

	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/http/response"
	"github.com/karingamassive/membership-service/internal/observability"
	"github.com/karingamassive/membership-service/internal/security"
)

// RequireActive rejects identities whose token carries a status other than
// ACTIVE. The status is read from the token, so a change takes effect when
// the access token is next issued.
func RequireActive(next http.Handler) http.Handler {
	return requireIdentity("active", func(id security.Identity) bool {
		return id.Status == domain.StatusActive
	}, "ACCOUNT_INACTIVE", "account is inactive, contact your area representative")(next)
}

func RequireAdmin(next http.Handler) http.Handler {
	return requireRank("admin", func(r domain.Rank) bool { return r.IsAdmin() })(next)
}

func RequireCommittee(next http.Handler) http.Handler {
	return requireRank("committee", func(r domain.Rank) bool { return r != domain.RankMember })(next)
}

func RequireRepresentative(next http.Handler) http.Handler {
	return requireRank("representative", func(r domain.Rank) bool {
		return r == domain.RankRepresentative || r.IsAdmin()
	})(next)
}

func requireRank(guard string, allow func(domain.Rank) bool) func(http.Handler) http.Handler {
	return requireIdentity(guard, func(id security.Identity) bool {
		return allow(id.Rank)
	}, "UNAUTHORIZED_OPERATION", "unauthorized operation")
}

func requireIdentity(guard string, allow func(security.Identity) bool, code, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "AUTH_REQUIRED", "missing auth context", nil)
				return
			}
			if !allow(id) {
				observability.RecordGuardRejection(r.Context(), guard)
				response.Error(w, r, http.StatusForbidden, code, message, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
