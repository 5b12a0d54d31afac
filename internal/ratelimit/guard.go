package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	TierAddress        = "address"
	TierAddressDaily   = "address_daily"
	TierContactAddress = "contact_address"
)

// Decision is the combined verdict across the tiers a guard consults.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Tier       string
	Degraded   bool
}

func (d *Decision) merge(tier string, res Result, blocked bool) {
	d.Degraded = d.Degraded || res.Degraded
	if !blocked {
		return
	}
	if d.Allowed || res.RetryAfter > d.RetryAfter {
		d.Tier = tier
		d.RetryAfter = res.RetryAfter
	}
	d.Allowed = false
}

// LoginGuard throttles credential checks by source address and by
// contact+address pair.
type LoginGuard struct {
	byAddress        *Limiter
	byAddressDaily   *Limiter
	byContactAddress *Limiter
}

func NewLoginGuard(byAddress, byAddressDaily, byContactAddress *Limiter) *LoginGuard {
	return &LoginGuard{
		byAddress:        byAddress,
		byAddressDaily:   byAddressDaily,
		byContactAddress: byContactAddress,
	}
}

// PairKey is the identity+address counter key.
func PairKey(contact, address string) string {
	return strings.ToLower(strings.TrimSpace(contact)) + "_" + address
}

type tierCheck struct {
	tier    string
	limiter *Limiter
	key     string
}

// Reserve takes one point from every login tier before the credential
// check. Concurrent attempts therefore cannot all pass a budget they spend
// together. A rejected reservation holds nothing.
func (g *LoginGuard) Reserve(ctx context.Context, contact, address string) (*Reservation, Decision, error) {
	return reserve(ctx, []tierCheck{
		{TierAddress, g.byAddress, address},
		{TierAddressDaily, g.byAddressDaily, address},
		{TierContactAddress, g.byContactAddress, PairKey(contact, address)},
	})
}

// ReserveAddress takes one point from the address tiers only, for code
// requests and code verification.
func (g *LoginGuard) ReserveAddress(ctx context.Context, address string) (*Reservation, Decision, error) {
	return reserve(ctx, []tierCheck{
		{TierAddress, g.byAddress, address},
		{TierAddressDaily, g.byAddressDaily, address},
	})
}

func reserve(ctx context.Context, checks []tierCheck) (*Reservation, Decision, error) {
	results := make([]Result, len(checks))
	errs := make([]error, len(checks))
	var eg errgroup.Group
	for i, c := range checks {
		eg.Go(func() error {
			results[i], errs[i] = c.limiter.Consume(ctx, c.key, 1)
			return nil
		})
	}
	_ = eg.Wait()

	r := &Reservation{}
	d := Decision{Allowed: true}
	for i, c := range checks {
		if errs[i] != nil {
			continue
		}
		d.merge(c.tier, results[i], !results[i].Allowed)
		if results[i].Allowed {
			r.held = append(r.held, heldPoint{tier: c.tier, limiter: c.limiter, key: c.key, degraded: results[i].Degraded})
		}
	}
	if err := errors.Join(errs...); err != nil {
		_ = r.Release(ctx)
		return nil, Decision{}, err
	}
	if !d.Allowed {
		_ = r.Release(ctx)
		return nil, d, nil
	}
	return r, d, nil
}

// Reservation is the points one attempt holds while its credentials are
// checked. Whatever is still held when the attempt ends is its charge.
type Reservation struct {
	held []heldPoint
}

type heldPoint struct {
	tier     string
	limiter  *Limiter
	key      string
	degraded bool
}

// Release returns every point still held, for attempts that were not a guess.
func (r *Reservation) Release(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, h := range r.held {
		errs = append(errs, h.limiter.Refund(ctx, h.key, 1, h.degraded))
	}
	r.held = nil
	return errors.Join(errs...)
}

// ReleaseTier returns the point held on one tier. Login uses it to uncharge
// the pair tier when the contact matches no identity.
func (r *Reservation) ReleaseTier(ctx context.Context, tier string) error {
	if r == nil {
		return nil
	}
	var err error
	kept := r.held[:0]
	for _, h := range r.held {
		if h.tier == tier {
			err = h.limiter.Refund(ctx, h.key, 1, h.degraded)
			continue
		}
		kept = append(kept, h)
	}
	r.held = kept
	return err
}

// Succeed settles a successful login: address points go back and the pair
// counter is cleared. Call it only after tokens were issued.
func (r *Reservation) Succeed(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, h := range r.held {
		if h.tier == TierContactAddress {
			errs = append(errs, h.limiter.Delete(ctx, h.key))
			continue
		}
		errs = append(errs, h.limiter.Refund(ctx, h.key, 1, h.degraded))
	}
	r.held = nil
	return errors.Join(errs...)
}

