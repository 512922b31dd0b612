package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key exceeds its limit.
var ErrRateLimited = errors.New("security: rate limit exceeded")

// RateLimitConfig configures the gateway throttles. Zero disables a limit.
type RateLimitConfig struct {
	// RequestsPerMinute bounds generation and feedback calls per user. It
	// smooths bursts; the daily plan quota is enforced by the engine.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// AuthFailuresPerMinute bounds failed authentications per remote address.
	AuthFailuresPerMinute int `yaml:"auth_failures_per_minute"`
}

// RateLimiter is a keyed sliding-window limiter. Each key keeps the
// timestamps of its events inside the window.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewRateLimiter allows limit events per key within window. A non-positive
// limit yields a limiter that admits everything.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		events: make(map[string][]time.Time),
	}
}

// Allow records an event for key, or returns ErrRateLimited without
// recording it when the key is at its limit.
func (rl *RateLimiter) Allow(key string) error {
	if rl == nil || rl.limit <= 0 {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	ev := evict(rl.events[key], now.Add(-rl.window))
	if len(ev) >= rl.limit {
		rl.events[key] = ev
		return ErrRateLimited
	}
	rl.events[key] = append(ev, now)
	return nil
}

// Blocked reports whether key is at its limit, without recording an event.
func (rl *RateLimiter) Blocked(key string) bool {
	if rl == nil || rl.limit <= 0 {
		return false
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	ev := evict(rl.events[key], rl.now().Add(-rl.window))
	rl.events[key] = ev
	return len(ev) >= rl.limit
}

// Prune drops keys with no events inside the window and reports how many
// keys remain.
func (rl *RateLimiter) Prune() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for k, ev := range rl.events {
		if ev = evict(ev, cutoff); len(ev) == 0 {
			delete(rl.events, k)
		} else {
			rl.events[k] = ev
		}
	}
	return len(rl.events)
}

// evict drops events before cutoff. Events are chronological.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
