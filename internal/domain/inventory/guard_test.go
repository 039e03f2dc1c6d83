package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stockledger/internal/core/apperror"
)

func testGuardConfig() GuardConfig {
	return GuardConfig{
		MaxAttempts:    5,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		AcquireTimeout: time.Second,
	}
}

func TestGuardRetriesUntilSuccess(t *testing.T) {
	g := NewGuard(testGuardConfig())

	calls := 0
	err := g.Do(context.Background(), "sku-1", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperror.NewConcurrentModification("inventory_record", "sku-1")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestGuardExhaustsAttempts(t *testing.T) {
	cfg := testGuardConfig()
	cfg.MaxAttempts = 3
	g := NewGuard(cfg)

	calls := 0
	err := g.Do(context.Background(), "sku-1", func(ctx context.Context) error {
		calls++
		return apperror.NewConcurrentModification("inventory_record", "sku-1")
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !apperror.IsConcurrentModification(err) {
		t.Errorf("expected CONCURRENT_MODIFICATION, got %v", err)
	}
}

func TestGuardDoesNotRetryOtherErrors(t *testing.T) {
	g := NewGuard(testGuardConfig())

	boom := errors.New("boom")
	calls := 0
	err := g.Do(context.Background(), "sku-1", func(ctx context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestGuardSerializesSameKey(t *testing.T) {
	g := NewGuard(testGuardConfig())

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), "sku-1", func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders for one key = %d, want 1", maxSeen)
	}
}

func TestGuardAllowsDifferentKeysInParallel(t *testing.T) {
	g := NewGuard(testGuardConfig())

	entered := make(chan string, 2)
	proceed := make(chan struct{})
	var wg sync.WaitGroup
	for _, key := range []string{"sku-1", "sku-2"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_ = g.Do(context.Background(), key, func(ctx context.Context) error {
				entered <- key
				<-proceed
				return nil
			})
		}(key)
	}

	// Both bodies must be running before either is released.
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(time.Second):
			t.Fatal("keys blocked each other")
		}
	}
	close(proceed)
	wg.Wait()
}

func TestGuardAcquireTimeout(t *testing.T) {
	cfg := testGuardConfig()
	cfg.AcquireTimeout = 10 * time.Millisecond
	g := NewGuard(cfg)

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), "sku-1", func(ctx context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	err := g.Do(context.Background(), "sku-1", func(ctx context.Context) error {
		t.Error("body ran without acquiring the key")
		return nil
	})
	close(release)

	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeConcurrentModification {
		t.Fatalf("error = %v, want CONCURRENT_MODIFICATION", err)
	}
	if !appErr.Retryable {
		t.Error("acquire timeout should be retryable")
	}
}

func TestGuardAcquireCancelled(t *testing.T) {
	g := NewGuard(testGuardConfig())

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), "sku-1", func(ctx context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Do(ctx, "sku-1", func(ctx context.Context) error {
		t.Error("body ran with cancelled context")
		return nil
	})
	close(release)

	if !apperror.IsConcurrentModification(err) {
		t.Errorf("error = %v, want CONCURRENT_MODIFICATION", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cause should be context.Canceled, got %v", err)
	}
}

func TestGuardReleasesIdleSlots(t *testing.T) {
	g := NewGuard(testGuardConfig())

	for i := 0; i < 5; i++ {
		if err := g.Do(context.Background(), "sku-1", func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.keys) != 0 {
		t.Errorf("idle slots retained: %d", len(g.keys))
	}
}
