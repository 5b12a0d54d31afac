package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/karingamassive/membership-service/internal/http/response"
	"github.com/karingamassive/membership-service/internal/ratelimit"
	"github.com/karingamassive/membership-service/internal/security"
)

// RateLimiter spends Cost points per request against a shared limiter.
// Backend failures are resolved by the limiter's own failure policy.
type RateLimiter struct {
	limiter *ratelimit.Limiter
	cost    int
	keyFunc func(r *http.Request) string
	logger  *slog.Logger
}

// NewRateLimiter keys on security.ClientIP when keyFunc is nil.
func NewRateLimiter(limiter *ratelimit.Limiter, cost int, keyFunc func(r *http.Request) string, logger *slog.Logger) *RateLimiter {
	if cost <= 0 {
		cost = 1
	}
	if keyFunc == nil {
		keyFunc = security.ClientIP
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{limiter: limiter, cost: cost, keyFunc: keyFunc, logger: logger}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.keyFunc(r)
			if key == "" {
				key = security.ClientIP(r)
			}
			policy := rl.limiter.Policy()
			res, err := rl.limiter.Consume(r.Context(), key, rl.cost)
			if err != nil {
				rl.logger.ErrorContext(r.Context(), "rate limiter unavailable", "scope", policy.Name, "error", err)
				response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_FAILURE", "service temporarily unavailable", nil)
				return
			}
			writeRateLimitHeaders(w.Header(), policy.Points, res.Remaining, res.RetryAfter)
			if !res.Allowed {
				response.RetryAfter(w, res.RetryAfter)
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitHeaders(h http.Header, limit int, remaining int, resetIn time.Duration) {
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", max(limit, 0)))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", max(remaining, 0)))
	if resetIn <= 0 {
		resetIn = time.Second
	}
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(resetIn).Unix()))
}
