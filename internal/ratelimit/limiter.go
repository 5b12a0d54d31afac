// Package ratelimit implements points-based counters with block windows,
// backed by the side store and insured by an in-process fallback.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/karingamassive/membership-service/internal/config"
	"github.com/karingamassive/membership-service/internal/observability"
)

// ErrUnavailable is returned when the counter backend failed and the
// policy has no way to make a decision.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Policy describes one named counter. Key prefixes are derived from Name.
type Policy struct {
	Name          string
	Points        int
	Duration      time.Duration
	BlockDuration time.Duration
	Failure       config.FailurePolicy
}

func PolicyFrom(name string, p config.LimiterPolicy) Policy {
	return Policy{
		Name:          name,
		Points:        p.Points,
		Duration:      p.Duration,
		BlockDuration: p.BlockDuration,
		Failure:       p.Failure,
	}
}

// Result is the state of one counter after a consume or a peek.
// RetryAfter is the time until the counter resets or the block lifts.
type Result struct {
	Allowed    bool
	Consumed   int
	Remaining  int
	RetryAfter time.Duration
	Degraded   bool
}

func newResult(p Policy, allowed bool, consumed int, ttl time.Duration) Result {
	if ttl < 0 {
		ttl = 0
	}
	return Result{
		Allowed:    allowed,
		Consumed:   consumed,
		Remaining:  max(p.Points-consumed, 0),
		RetryAfter: ttl,
	}
}

// Backend stores counters. Implementations must apply the same rules:
// a counter at or above its budget rejects without incrementing, the
// consume that exhausts the budget starts the block window, and a refund
// never moves the window or the block.
type Backend interface {
	Consume(ctx context.Context, p Policy, key string, points int) (Result, error)
	Refund(ctx context.Context, p Policy, key string, points int) error
	Delete(ctx context.Context, p Policy, key string) error
}

// Limiter applies one policy against a primary backend and, when that
// backend fails, against the policy's failure mode.
type Limiter struct {
	policy    Policy
	primary   Backend
	insurance Backend
	logger    *slog.Logger
}

func NewLimiter(policy Policy, primary, insurance Backend, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Failure == "" {
		policy.Failure = config.FailClosed
	}
	return &Limiter{policy: policy, primary: primary, insurance: insurance, logger: logger}
}

func (l *Limiter) Policy() Policy {
	return l.policy
}

// Consume spends points against key.
func (l *Limiter) Consume(ctx context.Context, key string, points int) (Result, error) {
	if points <= 0 {
		points = 1
	}
	res, err := l.primary.Consume(ctx, l.policy, key, points)
	if err == nil {
		l.record(ctx, res, "primary")
		return res, nil
	}
	return l.degrade(ctx, "consume", err, func(b Backend) (Result, error) {
		return b.Consume(ctx, l.policy, key, points)
	})
}

// Refund gives back points taken by an earlier Consume. degraded is the
// flag of that Consume's Result, so the backend that took the points is the
// one that returns them.
func (l *Limiter) Refund(ctx context.Context, key string, points int, degraded bool) error {
	if points <= 0 {
		points = 1
	}
	if degraded {
		if l.insurance == nil || l.policy.Failure == config.FailOpen {
			return nil
		}
		return l.insurance.Refund(ctx, l.policy, key, points)
	}
	if err := l.primary.Refund(ctx, l.policy, key, points); err != nil {
		observability.RecordSideStoreFailure(ctx, "ratelimit", "refund")
		l.logger.ErrorContext(ctx, "rate limiter refund failed", "limiter", l.policy.Name, "error", err)
		return err
	}
	return nil
}

func (l *Limiter) Delete(ctx context.Context, key string) error {
	var errs []error
	if err := l.primary.Delete(ctx, l.policy, key); err != nil {
		observability.RecordSideStoreFailure(ctx, "ratelimit", "delete")
		errs = append(errs, err)
	}
	if l.insurance != nil {
		_ = l.insurance.Delete(ctx, l.policy, key)
	}
	return errors.Join(errs...)
}

func (l *Limiter) degrade(ctx context.Context, op string, cause error, fallback func(Backend) (Result, error)) (Result, error) {
	observability.RecordSideStoreFailure(ctx, "ratelimit", op)
	if l.policy.Failure == config.FailOpen {
		l.logger.WarnContext(ctx, "rate limiter backend unavailable, allowing request",
			"limiter", l.policy.Name, "op", op, "error", cause)
		res := Result{Allowed: true, Remaining: l.policy.Points, Degraded: true}
		l.record(ctx, res, "fail_open")
		return res, nil
	}
	l.logger.ErrorContext(ctx, "rate limiter backend unavailable, using insurance limiter",
		"limiter", l.policy.Name, "op", op, "error", cause)
	if l.insurance == nil {
		return Result{}, errors.Join(ErrUnavailable, cause)
	}
	res, err := fallback(l.insurance)
	if err != nil {
		return Result{}, errors.Join(ErrUnavailable, cause, err)
	}
	res.Degraded = true
	l.record(ctx, res, "insurance")
	return res, nil
}

func (l *Limiter) record(ctx context.Context, res Result, mode string) {
	outcome := "allowed"
	if !res.Allowed {
		outcome = "rejected"
		observability.RecordRateLimitRetryAfter(ctx, l.policy.Name, res.RetryAfter)
	}
	observability.RecordRateLimitDecision(ctx, l.policy.Name, outcome, mode)
}
