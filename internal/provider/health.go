package provider

import (
	"sync"
	"time"
)

// healthState is the availability state of a provider.
type healthState int

const (
	stateHealthy  healthState = iota
	stateCooldown             // transient failure, backing off
	stateDead                 // too many consecutive failures
)

func (s healthState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateCooldown:
		return "cooldown"
	case stateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Backoff is an exponential delay schedule doubling from Initial up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns the wait before retry n, counting from zero.
func (b Backoff) Delay(n int) time.Duration {
	d := b.Initial
	for range n {
		if d >= b.Max {
			break
		}
		d *= 2
	}
	return min(d, b.Max)
}

// HealthConfig controls health tracking behavior.
type HealthConfig struct {
	// InitialBackoff is the cooldown after the first failure. Default: 1s.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the cooldown. Default: 60s.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxFailures is the number of consecutive failures before a provider
	// is marked dead. Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// CheckInterval is how often dead providers are probed. Default: 10s.
	CheckInterval time.Duration `yaml:"check_interval"`
}

func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10 * time.Second
	}
}

// HealthReport is a point-in-time view of one provider's health.
type HealthReport struct {
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	State    string    `json:"state"`
	Failures int       `json:"failures"`
	RetryAt  time.Time `json:"retry_at,omitzero"`
}

// healthTracker monitors the availability of a single provider.
type healthTracker struct {
	cfg     HealthConfig
	backoff Backoff

	// onStateChange is called outside the lock on every transition.
	onStateChange func(from, to healthState)

	mu              sync.Mutex
	state           healthState
	failures        int
	cooldownExpires time.Time

	now func() time.Time
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	cfg.defaults()
	return &healthTracker{
		cfg:     cfg,
		backoff: Backoff{Initial: cfg.InitialBackoff, Max: cfg.MaxBackoff},
		state:   stateHealthy,
		now:     time.Now,
	}
}

// IsAvailable reports whether the provider should be preferred for the next
// request. A provider in cooldown becomes available once its backoff expires.
func (h *healthTracker) IsAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateHealthy:
		return true
	case stateCooldown:
		return !h.now().Before(h.cooldownExpires)
	default:
		return false
	}
}

// RecordSuccess resets the tracker to healthy.
func (h *healthTracker) RecordSuccess() {
	h.mu.Lock()
	prev := h.state
	h.state = stateHealthy
	h.failures = 0
	h.cooldownExpires = time.Time{}
	h.mu.Unlock()

	if prev != stateHealthy && h.onStateChange != nil {
		h.onStateChange(prev, stateHealthy)
	}
}

// RecordFailure moves the tracker to cooldown, or to dead after MaxFailures
// consecutive failures.
func (h *healthTracker) RecordFailure() {
	h.mu.Lock()
	prev := h.state
	h.failures++
	if h.failures >= h.cfg.MaxFailures {
		h.state = stateDead
	} else {
		h.state = stateCooldown
		h.cooldownExpires = h.now().Add(h.backoff.Delay(h.failures - 1))
	}
	next := h.state
	h.mu.Unlock()

	if prev != next && h.onStateChange != nil {
		h.onStateChange(prev, next)
	}
}

// ShouldHealthCheck is true for dead providers and expired cooldowns.
func (h *healthTracker) ShouldHealthCheck() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateDead:
		return true
	case stateCooldown:
		return !h.now().Before(h.cooldownExpires)
	default:
		return false
	}
}

func (h *healthTracker) State() healthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Report snapshots the tracker.
func (h *healthTracker) Report(name, model string) HealthReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := HealthReport{Provider: name, Model: model, State: h.state.String(), Failures: h.failures}
	if h.state == stateCooldown {
		r.RetryAt = h.cooldownExpires
	}
	return r
}
