package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestProviderLimiterEnforcesInterval(t *testing.T) {
	limiter := NewProviderLimiter(ProviderLimiterConfig{
		Name:            "test",
		MaxConcurrency:  4,
		MinCallInterval: 20 * time.Millisecond,
	})

	const calls = 4
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limiter.Schedule(context.Background(), func(context.Context) error {
				return nil
			})
		}()
	}
	wg.Wait()

	// 4 call starts spaced 20ms apart need at least 60ms total
	elapsed := time.Since(start)
	if elapsed < 3*20*time.Millisecond {
		t.Errorf("expected at least 60ms for %d paced calls, took %v", calls, elapsed)
	}
}

func TestProviderLimiterBoundsConcurrency(t *testing.T) {
	limiter := NewProviderLimiter(ProviderLimiterConfig{
		Name:           "test",
		MaxConcurrency: 2,
	})

	var inFlight, peak atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limiter.Schedule(context.Background(), func(context.Context) error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("concurrency bound violated: %d calls in flight", got)
	}
}

func TestProviderLimiterPropagatesFnError(t *testing.T) {
	limiter := NewProviderLimiter(ProviderLimiterConfig{Name: "test"})

	wantErr := errors.New("provider exploded")
	err := limiter.Schedule(context.Background(), func(context.Context) error {
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Errorf("expected fn error to propagate, got %v", err)
	}
}

func TestProviderLimiterRespectsContextWhileWaiting(t *testing.T) {
	limiter := NewProviderLimiter(ProviderLimiterConfig{
		Name:            "test",
		MaxConcurrency:  1,
		MinCallInterval: time.Hour,
	})

	// First call claims the interval slot
	if err := limiter.Schedule(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Schedule(ctx, func(context.Context) error {
		t.Error("fn must not run after the caller gave up")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error while waiting for the interval slot, got %v", err)
	}
}

func TestScheduleWithResult(t *testing.T) {
	limiter := NewProviderLimiter(ProviderLimiterConfig{Name: "test"})

	got, err := ScheduleWithResult(limiter, context.Background(), func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}
