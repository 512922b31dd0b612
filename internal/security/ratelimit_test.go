package security

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRateLimiter_PerKey(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Minute)
	for i := range 3 {
		if err := rl.Allow("user-1"); err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
	}
	if err := rl.Allow("user-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("4th Allow = %v, want ErrRateLimited", err)
	}
	if err := rl.Allow("user-2"); err != nil {
		t.Errorf("other key throttled: %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	_ = rl.Allow("k")
	now = now.Add(30 * time.Second)
	_ = rl.Allow("k")
	if err := rl.Allow("k"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected the window to be full")
	}

	// The first event leaves the window; one slot frees up.
	now = now.Add(31 * time.Second)
	if err := rl.Allow("k"); err != nil {
		t.Fatalf("after first event expired: %v", err)
	}
	if err := rl.Allow("k"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("second event is still inside the window")
	}
}

func TestRateLimiter_Blocked(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Minute)
	if rl.Blocked("ip") {
		t.Fatal("fresh key should not be blocked")
	}
	_ = rl.Allow("ip")
	_ = rl.Allow("ip")
	if !rl.Blocked("ip") || !rl.Blocked("ip") {
		t.Error("key at its limit should stay blocked")
	}
	if rl.Blocked("other") {
		t.Error("other key should not be blocked")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	t.Parallel()

	var nilLimiter *RateLimiter
	for _, rl := range []*RateLimiter{NewRateLimiter(0, time.Minute), nilLimiter} {
		for range 100 {
			if err := rl.Allow("k"); err != nil {
				t.Fatalf("disabled limiter rejected: %v", err)
			}
		}
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(5, time.Minute)
	rl.now = func() time.Time { return now }

	_ = rl.Allow("old")
	now = now.Add(50 * time.Second)
	_ = rl.Allow("recent")
	now = now.Add(20 * time.Second)

	if n := rl.Prune(); n != 1 {
		t.Errorf("Prune() = %d keys, want 1", n)
	}
	if _, ok := rl.events["old"]; ok {
		t.Error("expired key should be dropped")
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(10, time.Minute)
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("shared") == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != 10 {
		t.Errorf("allowed = %d, want 10", got)
	}
}
