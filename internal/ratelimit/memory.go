package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is a single-process counter store. It backs the login
// limiters while the side store is unreachable.
type MemoryBackend struct {
	mu      sync.Mutex
	store   map[string]*memoryState
	cleanup time.Time
	now     func() time.Time
}

type memoryState struct {
	consumed  int
	expiresAt time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		store:   make(map[string]*memoryState),
		cleanup: time.Now().Add(time.Minute),
		now:     time.Now,
	}
}

func (b *MemoryBackend) Consume(_ context.Context, p Policy, key string, points int) (Result, error) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweep(now)

	k := p.Name + ":" + key
	state := b.live(k, now)
	if state != nil && state.consumed >= p.Points {
		return newResult(p, false, state.consumed, state.expiresAt.Sub(now)), nil
	}
	if state == nil {
		state = &memoryState{expiresAt: now.Add(p.Duration)}
		b.store[k] = state
	}
	state.consumed += points
	if state.consumed >= p.Points && p.BlockDuration > 0 {
		state.expiresAt = now.Add(p.BlockDuration)
	}
	return newResult(p, state.consumed <= p.Points, state.consumed, state.expiresAt.Sub(now)), nil
}

func (b *MemoryBackend) Refund(_ context.Context, p Policy, key string, points int) error {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	k := p.Name + ":" + key
	state := b.live(k, now)
	if state == nil {
		return nil
	}
	state.consumed -= points
	if state.consumed <= 0 {
		delete(b.store, k)
	}
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, p Policy, key string) error {
	b.mu.Lock()
	delete(b.store, p.Name+":"+key)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) live(k string, now time.Time) *memoryState {
	state, ok := b.store[k]
	if !ok {
		return nil
	}
	if !now.Before(state.expiresAt) {
		delete(b.store, k)
		return nil
	}
	return state
}

func (b *MemoryBackend) sweep(now time.Time) {
	if now.Before(b.cleanup) {
		return
	}
	for k, v := range b.store {
		if !now.Before(v.expiresAt) {
			delete(b.store, k)
		}
	}
	b.cleanup = now.Add(time.Minute)
}
