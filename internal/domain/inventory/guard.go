package inventory

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// GuardConfig bounds the guard's waiting and retrying.
type GuardConfig struct {
	// MaxAttempts is the optimistic retry bound per operation.
	MaxAttempts int

	// BaseBackoff is the first retry delay; doubles per attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// AcquireTimeout bounds how long a mutation may wait for per-product
	// exclusivity before failing with a retryable conflict.
	AcquireTimeout time.Duration
}

// DefaultGuardConfig returns production defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxAttempts:    5,
		BaseBackoff:    10 * time.Millisecond,
		MaxBackoff:     250 * time.Millisecond,
		AcquireTimeout: 5 * time.Second,
	}
}

// Guard serializes mutating operations per product key while letting
// different products proceed in parallel.
//
// Two layers of protection:
//  1. an in-process keyed semaphore, so local contention never burns
//     optimistic retries;
//  2. a bounded retry loop around the guarded body for version conflicts
//     raised by the store (concurrent writers in other processes).
//
// Acquisition is context-aware: a caller that cannot win exclusivity within
// the configured bound fails with a retryable CONCURRENT_MODIFICATION
// instead of blocking indefinitely.
type Guard struct {
	mu   sync.Mutex
	keys map[string]*keySlot
	cfg  GuardConfig
}

type keySlot struct {
	sem  chan struct{}
	refs int
}

// NewGuard creates a guard with the given bounds.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Guard{
		keys: make(map[string]*keySlot),
		cfg:  cfg,
	}
}

// Do runs fn while holding exclusive access to key, retrying fn on
// CONCURRENT_MODIFICATION up to the attempt bound with exponential backoff
// and jitter. Any other error propagates immediately without retry.
func (g *Guard) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	release, err := g.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	backoff := g.cfg.BaseBackoff
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil || !apperror.IsConcurrentModification(err) {
			return err
		}
		lastErr = err

		if attempt == g.cfg.MaxAttempts {
			break
		}
		logger.Debug(ctx, "version conflict, retrying",
			"key", key,
			"attempt", attempt,
			"backoff", backoff,
		)
		if err := sleep(ctx, jitter(backoff)); err != nil {
			return apperror.NewConcurrentModification("inventory_record", key).WithCause(err)
		}
		backoff *= 2
		if backoff > g.cfg.MaxBackoff {
			backoff = g.cfg.MaxBackoff
		}
	}
	return lastErr
}

// acquire takes the per-key slot, waiting up to AcquireTimeout.
func (g *Guard) acquire(ctx context.Context, key string) (func(), error) {
	g.mu.Lock()
	slot, ok := g.keys[key]
	if !ok {
		slot = &keySlot{sem: make(chan struct{}, 1)}
		g.keys[key] = slot
	}
	slot.refs++
	g.mu.Unlock()

	timer := time.NewTimer(g.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case slot.sem <- struct{}{}:
		return func() {
			<-slot.sem
			g.put(key, slot)
		}, nil
	case <-ctx.Done():
		g.put(key, slot)
		return nil, apperror.NewConcurrentModification("inventory_record", key).WithCause(ctx.Err())
	case <-timer.C:
		g.put(key, slot)
		return nil, apperror.NewConcurrentModification("inventory_record", key).
			WithDetail("reason", "lock acquisition timed out")
	}
}

// put drops one reference and garbage-collects idle slots.
func (g *Guard) put(key string, slot *keySlot) {
	g.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(g.keys, key)
	}
	g.mu.Unlock()
}

// jitter spreads retries of concurrent losers apart (full jitter).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)))
}

// sleep waits d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
