package router

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/karingamassive/membership-service/internal/health"
	"github.com/karingamassive/membership-service/internal/http/handler"
	"github.com/karingamassive/membership-service/internal/http/middleware"
	"github.com/karingamassive/membership-service/internal/http/response"
)

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	Verifier       middleware.AccessVerifier
	CORSOrigins    []string
	TrustedProxies []netip.Prefix
	Logger         *slog.Logger
	GenericLimiter GenericRateLimiterFunc
	Readiness      *health.ProbeRunner
	EnableOTelHTTP bool
}

// GenericRateLimiterFunc guards the listing and search endpoints. A nil value leaves
// them unlimited.
type GenericRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.TrustedRealIP(dep.TrustedProxies))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))

	generic := dep.GenericLimiter
	if generic == nil {
		generic = func(next http.Handler) http.Handler { return next }
	}
	authenticated := middleware.Authenticated(dep.Verifier)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Post("/refresh", dep.AuthHandler.Refresh)
	r.With(authenticated).Post("/verify", dep.AuthHandler.Verify)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/user/create", dep.AuthHandler.Register)
		r.Post("/user/login", dep.AuthHandler.Login)
		r.Post("/user/request_code", dep.AuthHandler.RequestCode)
		r.Post("/user/change_password", dep.AuthHandler.ChangePassword)
		r.With(authenticated).Post("/user/logout", dep.AuthHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Use(middleware.RequireActive)
			r.Get("/user", dep.UserHandler.Me)
			r.Put("/user/update", dep.UserHandler.Update)
			r.With(middleware.RequireAdmin).Delete("/user/delete/{id}", dep.UserHandler.Delete)
		})

		r.Group(func(r chi.Router) {
			r.Use(generic)
			r.Use(authenticated)
			r.Use(middleware.RequireActive)
			r.Get("/users/all", dep.UserHandler.List)
			r.Post("/users/search", dep.UserHandler.Search)
			r.With(middleware.RequireRepresentative).Get("/users/admin/all", dep.UserHandler.ListForAdmin)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
