package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/karingamassive/membership-service/internal/config"
)

func newRedisForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loginPolicies() (Policy, Policy, Policy) {
	return Policy{Name: "login_fail_ip", Points: 10, Duration: 10 * time.Minute, Failure: config.FailClosed},
		Policy{Name: "login_fail_ip_per_day", Points: 100, Duration: 24 * time.Hour, BlockDuration: 24 * time.Hour, Failure: config.FailClosed},
		Policy{Name: "login_fail_consecutive_contact_and_ip", Points: 10, Duration: 10 * time.Minute, BlockDuration: 2 * time.Minute, Failure: config.FailClosed}
}

func newLoginGuardForTest(backend Backend, insurance Backend) *LoginGuard {
	ip, day, pair := loginPolicies()
	logger := quietLogger()
	return NewLoginGuard(
		NewLimiter(ip, backend, insurance, logger),
		NewLimiter(day, backend, insurance, logger),
		NewLimiter(pair, backend, insurance, logger),
	)
}

func TestRedisConsumeRejectsWithoutIncrementingOnceExhausted(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisForTest(t)
	backend := NewRedisBackend(client, "rl", time.Second)
	p := Policy{Name: "login_fail_ip", Points: 10, Duration: 10 * time.Minute}

	for i := 1; i <= 10; i++ {
		res, err := backend.Consume(ctx, p, "10.0.0.1", 1)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if !res.Allowed || res.Consumed != i {
			t.Fatalf("consume %d: unexpected result %+v", i, res)
		}
	}
	res, err := backend.Consume(ctx, p, "10.0.0.1", 1)
	if err != nil {
		t.Fatalf("consume 11: %v", err)
	}
	if res.Allowed || res.RetryAfter <= 0 {
		t.Fatalf("expected rejection with retry hint, got %+v", res)
	}
	raw, err := mr.Get("rl:login_fail_ip:10.0.0.1")
	if err != nil {
		t.Fatalf("get raw counter: %v", err)
	}
	if raw != "10" {
		t.Fatalf("blocked consume must not increment, counter=%s", raw)
	}
	if ttl := mr.TTL("rl:login_fail_ip:10.0.0.1"); ttl <= 0 || ttl > 10*time.Minute {
		t.Fatalf("unexpected window ttl %v", ttl)
	}
}

func TestRedisConsumeStartsBlockWhenBudgetSpent(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisForTest(t)
	backend := NewRedisBackend(client, "rl", time.Second)
	p := Policy{Name: "generic", Points: 100, Duration: time.Minute, BlockDuration: time.Hour}

	for i := 0; i < 50; i++ {
		res, err := backend.Consume(ctx, p, "10.0.0.2", 2)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d should pass: res=%+v err=%v", i, res, err)
		}
	}
	if ttl := mr.TTL("rl:generic:10.0.0.2"); ttl != time.Hour {
		t.Fatalf("expected block ttl of 1h once budget spent, got %v", ttl)
	}
	res, err := backend.Consume(ctx, p, "10.0.0.2", 2)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if res.Allowed || res.RetryAfter < 59*time.Minute {
		t.Fatalf("expected 51st request blocked for about an hour, got %+v", res)
	}

	mr.FastForward(time.Hour + time.Second)
	res, err = backend.Consume(ctx, p, "10.0.0.2", 2)
	if err != nil || !res.Allowed || res.Consumed != 2 {
		t.Fatalf("expected fresh window after block, res=%+v err=%v", res, err)
	}
}

func TestRedisRefundKeepsWindowAndDropsEmptyCounter(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisForTest(t)
	backend := NewRedisBackend(client, "rl", time.Second)
	p := Policy{Name: "pair", Points: 2, Duration: time.Minute, BlockDuration: 2 * time.Minute}

	for i := 0; i < 2; i++ {
		if _, err := backend.Consume(ctx, p, "k", 1); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}
	if err := backend.Refund(ctx, p, "k", 1); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if raw, _ := mr.Get("rl:pair:k"); raw != "1" {
		t.Fatalf("expected counter 1 after refund, got %q", raw)
	}
	if ttl := mr.TTL("rl:pair:k"); ttl != 2*time.Minute {
		t.Fatalf("refund must not move the ttl, got %v", ttl)
	}
	if err := backend.Refund(ctx, p, "k", 1); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if mr.Exists("rl:pair:k") {
		t.Fatal("expected empty counter to be removed")
	}
	if err := backend.Refund(ctx, p, "missing", 1); err != nil {
		t.Fatalf("refund of missing counter: %v", err)
	}
	if mr.Exists("rl:pair:missing") {
		t.Fatal("refund must not create counters")
	}

	if _, err := backend.Consume(ctx, p, "k", 1); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := backend.Delete(ctx, p, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("rl:pair:k") {
		t.Fatal("expected counter to be deleted")
	}
}

func TestLoginGuardRejectsEleventhAttemptFromAddress(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisForTest(t)
	guard := newLoginGuardForTest(NewRedisBackend(client, "rl", time.Second), NewMemoryBackend())

	for i := 0; i < 10; i++ {
		held, d, err := guard.Reserve(ctx, "+255700000001", "10.0.0.3")
		if err != nil || !d.Allowed || held == nil {
			t.Fatalf("attempt %d should be reserved: d=%+v err=%v", i+1, d, err)
		}
	}
	held, d, err := guard.Reserve(ctx, "+255700000099", "10.0.0.3")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if d.Allowed || held != nil || d.Tier != TierAddress || d.RetryAfter <= 0 {
		t.Fatalf("expected address tier rejection, got %+v", d)
	}
	if raw, _ := mr.Get("rl:login_fail_ip_per_day:10.0.0.3"); raw != "10" {
		t.Fatalf("rejected reservation must give back the daily point, got %q", raw)
	}
	if mr.Exists("rl:login_fail_consecutive_contact_and_ip:" + PairKey("+255700000099", "10.0.0.3")) {
		t.Fatal("rejected reservation must not leave a pair counter")
	}

	_, other, err := guard.Reserve(ctx, "+255700000001", "10.0.0.4")
	if err != nil || !other.Allowed {
		t.Fatalf("other address must be unaffected: d=%+v err=%v", other, err)
	}
}

func TestLoginGuardConcurrentReservationsStayWithinBudget(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisForTest(t)
	guard := newLoginGuardForTest(NewRedisBackend(client, "rl", time.Second), NewMemoryBackend())

	const attempts = 60
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, d, err := guard.Reserve(ctx, fmt.Sprintf("+2557000001%02d", i), "10.0.0.10")
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			if d.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 10 {
		t.Fatalf("expected exactly 10 concurrent attempts admitted, got %d", got)
	}
	if raw, _ := mr.Get("rl:login_fail_ip:10.0.0.10"); raw != "10" {
		t.Fatalf("expected address counter pinned at 10, got %q", raw)
	}
}

func TestReservationSucceedRefundsAddressAndClearsPair(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisForTest(t)
	guard := newLoginGuardForTest(NewRedisBackend(client, "rl", time.Second), nil)
	pairKey := "rl:login_fail_consecutive_contact_and_ip:" + PairKey("+255700000001", "10.0.0.5")

	for i := 0; i < 4; i++ {
		if _, _, err := guard.Reserve(ctx, "+255700000001", "10.0.0.5"); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}
	held, d, err := guard.Reserve(ctx, "+255700000001", "10.0.0.5")
	if err != nil || !d.Allowed {
		t.Fatalf("reserve: d=%+v err=%v", d, err)
	}
	if err := held.Succeed(ctx); err != nil {
		t.Fatalf("succeed: %v", err)
	}
	if mr.Exists(pairKey) {
		t.Fatal("expected pair counter to be cleared")
	}
	if raw, _ := mr.Get("rl:login_fail_ip:10.0.0.5"); raw != "4" {
		t.Fatalf("a successful attempt must not be charged, address counter=%q", raw)
	}
}

func TestReservationReleaseTierUnchargesPairOnly(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisForTest(t)
	guard := newLoginGuardForTest(NewRedisBackend(client, "rl", time.Second), nil)

	held, _, err := guard.Reserve(ctx, "+255799999999", "10.0.0.6")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := held.ReleaseTier(ctx, TierContactAddress); err != nil {
		t.Fatalf("release tier: %v", err)
	}
	if !mr.Exists("rl:login_fail_ip:10.0.0.6") || !mr.Exists("rl:login_fail_ip_per_day:10.0.0.6") {
		t.Fatal("expected address counters to stay charged")
	}
	if mr.Exists("rl:login_fail_consecutive_contact_and_ip:" + PairKey("+255799999999", "10.0.0.6")) {
		t.Fatal("pair counter must not be charged for unknown identity")
	}

	if err := held.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("rl:login_fail_ip:10.0.0.6") {
		t.Fatal("expected address counter to be given back")
	}
}

func TestLimiterFailClosedUsesInsurance(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisForTest(t)
	guard := newLoginGuardForTest(NewRedisBackend(client, "rl", 200*time.Millisecond), NewMemoryBackend())
	mr.Close()

	for i := 0; i < 10; i++ {
		_, d, err := guard.Reserve(ctx, "+255700000001", "10.0.0.7")
		if err != nil {
			t.Fatalf("reserve with store down: %v", err)
		}
		if !d.Allowed || !d.Degraded {
			t.Fatalf("expected degraded admission, got %+v", d)
		}
	}
	_, d, err := guard.Reserve(ctx, "+255700000001", "10.0.0.7")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if d.Allowed {
		t.Fatalf("insurance limiter must still enforce the budget, got %+v", d)
	}
}

func TestLimiterFailClosedWithoutInsuranceErrors(t *testing.T) {
	mr, client := newRedisForTest(t)
	l := NewLimiter(Policy{Name: "login_fail_ip", Points: 10, Duration: time.Minute, Failure: config.FailClosed},
		NewRedisBackend(client, "rl", 200*time.Millisecond), nil, quietLogger())
	mr.Close()

	if _, err := l.Consume(context.Background(), "10.0.0.8", 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLimiterFailOpenAdmits(t *testing.T) {
	mr, client := newRedisForTest(t)
	l := NewLimiter(Policy{Name: "generic", Points: 100, Duration: time.Minute, Failure: config.FailOpen},
		NewRedisBackend(client, "rl", 200*time.Millisecond), nil, quietLogger())
	mr.Close()

	res, err := l.Consume(context.Background(), "10.0.0.9", 2)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !res.Allowed || !res.Degraded {
		t.Fatalf("expected degraded admission, got %+v", res)
	}
}

func TestMemoryBackendWindowAndBlock(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }
	p := Policy{Name: "pair", Points: 3, Duration: 10 * time.Minute, BlockDuration: 2 * time.Minute}

	for i := 0; i < 3; i++ {
		res, err := b.Consume(ctx, p, "k", 1)
		if err != nil || !res.Allowed {
			t.Fatalf("consume %d: res=%+v err=%v", i, res, err)
		}
	}
	res, _ := b.Consume(ctx, p, "k", 1)
	if res.Allowed || res.Consumed != 3 || res.RetryAfter != 2*time.Minute {
		t.Fatalf("expected block without increment, got %+v", res)
	}

	now = now.Add(2*time.Minute + time.Second)
	res, _ = b.Consume(ctx, p, "k", 1)
	if !res.Allowed || res.Consumed != 1 {
		t.Fatalf("expected counter released after block, got %+v", res)
	}

	if err := b.Refund(ctx, p, "k", 1); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, ok := b.store[p.Name+":k"]; ok {
		t.Fatal("expected empty counter to be removed")
	}
}
