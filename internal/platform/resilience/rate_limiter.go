package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ProviderLimiter paces outbound calls to one external quote provider.
// It bounds concurrency with a weighted semaphore and enforces a minimum
// inter-call interval, so bursts from unrelated operations are throttled
// together as long as they share the same limiter instance.
//
// One ProviderLimiter per provider is constructed at process start and
// shared by reference for the process lifetime. Admission is FIFO: the
// semaphore and the interval gate are both acquired in arrival order.
type ProviderLimiter struct {
	name        string
	concurrency *semaphore.Weighted

	mu       sync.Mutex
	interval time.Duration
	nextSlot time.Time
}

// ProviderLimiterConfig holds limiter configuration for one provider
type ProviderLimiterConfig struct {
	Name            string
	MaxConcurrency  int64         // Max in-flight calls (default 1)
	MinCallInterval time.Duration // Minimum spacing between call starts (0 = unpaced)
}

// NewProviderLimiter creates a limiter for one provider
func NewProviderLimiter(cfg ProviderLimiterConfig) *ProviderLimiter {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}

	return &ProviderLimiter{
		name:        cfg.Name,
		concurrency: semaphore.NewWeighted(cfg.MaxConcurrency),
		interval:    cfg.MinCallInterval,
	}
}

// Schedule runs fn once admission is granted. The call counts against the
// concurrency bound for its full duration; the interval gate only spaces
// call starts. Returns the context error if the caller gives up while
// waiting for admission.
func (pl *ProviderLimiter) Schedule(ctx context.Context, fn func(context.Context) error) error {
	if err := pl.admit(ctx); err != nil {
		return err
	}
	defer pl.concurrency.Release(1)

	return fn(ctx)
}

// ScheduleWithResult runs fn under the limiter and returns its result.
// Standalone generic function because Go does not support generic methods.
func ScheduleWithResult[T any](pl *ProviderLimiter, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := pl.admit(ctx); err != nil {
		return zero, err
	}
	defer pl.concurrency.Release(1)

	return fn(ctx)
}

// admit blocks until both the concurrency slot and the interval slot are
// available, or the context is done.
func (pl *ProviderLimiter) admit(ctx context.Context) error {
	if err := pl.concurrency.Acquire(ctx, 1); err != nil {
		return err
	}

	wait := pl.reserveSlot()
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		pl.concurrency.Release(1)
		return ctx.Err()
	}
}

// reserveSlot claims the next start time and returns how long to wait for it.
// Claiming under the lock keeps admission order strict even when several
// goroutines wake at once.
func (pl *ProviderLimiter) reserveSlot() time.Duration {
	if pl.interval <= 0 {
		return 0
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	now := time.Now()
	slot := pl.nextSlot
	if slot.Before(now) {
		slot = now
	}
	pl.nextSlot = slot.Add(pl.interval)

	return slot.Sub(now)
}

// Name returns the provider name this limiter paces
func (pl *ProviderLimiter) Name() string {
	return pl.name
}
