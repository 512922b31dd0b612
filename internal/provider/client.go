package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

// ClientConfig controls retries and generation parameters.
type ClientConfig struct {
	// MaxRetries is the number of retries after the first attempt for
	// timeouts and transient failures. Default: 2. Negative disables retries.
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoff is the wait before the first retry. Default: 500ms.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the doubling wait between retries. Default: 4s.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// Timeout bounds a single attempt when the caller passes none. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`

	// Temperature is the sampling temperature. Default: 0.8.
	Temperature float64 `yaml:"temperature"`

	// MaxOutputTokens bounds the model reply. Default: 800.
	MaxOutputTokens int `yaml:"max_output_tokens"`

	Health HealthConfig `yaml:"health"`
}

// WithDefaults returns a copy with zero fields set to their defaults.
func (c ClientConfig) WithDefaults() ClientConfig {
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = 2
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 4 * time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.8
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 800
	}
	c.Health.defaults()
	return c
}

// Entry is a named provider. The first entry passed to NewClient is the
// primary; later entries serve as fallbacks while it is unhealthy.
type Entry struct {
	Name     string
	Provider Provider
}

type clientEntry struct {
	Entry
	health *healthTracker
}

// Attempt describes one call to a provider, reported to observers.
type Attempt struct {
	Provider string
	Model    string
	Number   int // 1-based
	Duration time.Duration
	Err      error
}

// Completion is the raw text returned by a successful generation.
type Completion struct {
	Text     string
	Provider string
	Model    string
	Attempts int
	Usage    TokenUsage
}

// ClientOption configures optional Client parameters.
type ClientOption func(*Client)

// WithLogger sets the logger. When omitted, log output is discarded.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithObserver registers a callback invoked after every attempt.
func WithObserver(fn func(Attempt)) ClientOption {
	return func(c *Client) { c.observe = fn }
}

// Client sends prompts to the configured providers with per-attempt
// timeouts, bounded retries and health-aware fallback.
type Client struct {
	cfg     ClientConfig
	backoff Backoff
	entries []*clientEntry
	logger  *slog.Logger
	observe func(Attempt)
	sleep   func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a client over entries, in preference order.
func NewClient(entries []Entry, cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}
	cfg = cfg.WithDefaults()

	c := &Client{
		cfg:     cfg,
		backoff: Backoff{Initial: cfg.InitialBackoff, Max: cfg.MaxBackoff},
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.observe == nil {
		c.observe = func(Attempt) {}
	}

	for _, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		ce := &clientEntry{Entry: e, health: newHealthTracker(cfg.Health)}
		name, logger := e.Name, c.logger
		ce.health.onStateChange = func(from, to healthState) {
			switch to {
			case stateCooldown:
				logger.Warn("provider entered cooldown", "provider", name)
			case stateDead:
				logger.Error("provider marked dead", "provider", name)
			case stateHealthy:
				logger.Info("provider revived", "provider", name, "previous_state", from.String())
			}
		}
		c.entries = append(c.entries, ce)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() ClientConfig { return c.cfg }

// ContextWindowSize returns the context window of the primary provider.
func (c *Client) ContextWindowSize() int {
	return c.entries[0].Provider.ContextWindowSize()
}

// DefaultModel returns the default model of the primary provider.
func (c *Client) DefaultModel() string {
	return c.entries[0].Provider.ModelName()
}

// Generate sends prompt and returns the raw model text. model applies to
// the primary provider only; fallbacks use their own default. timeout bounds
// each attempt, falling back to the configured timeout when zero.
//
// Timeouts and transient failures are retried up to MaxRetries times with
// exponential backoff. Rate limits and fatal errors are returned at once.
// An empty reply is not an error here.
func (c *Client) Generate(ctx context.Context, prompt, model string, timeout time.Duration) (Completion, error) {
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	temp := c.cfg.Temperature
	attempts := 1 + c.cfg.MaxRetries

	var lastErr error
	for n := range attempts {
		if n > 0 {
			if err := c.sleep(ctx, c.backoff.Delay(n-1)); err != nil {
				return Completion{}, fmt.Errorf("provider: waiting to retry: %w", err)
			}
		}

		e := c.pick()
		req := CompletionRequest{
			Messages:    []LLMMessage{{Role: MessageRoleUser, Content: prompt}},
			MaxTokens:   c.cfg.MaxOutputTokens,
			Temperature: &temp,
		}
		if e == c.entries[0] {
			req.Model = model
		}
		usedModel := req.Model
		if usedModel == "" {
			usedModel = e.Provider.ModelName()
		}

		c.logger.Debug("calling provider",
			"provider", e.Name, "model", usedModel, "attempt", n+1, "prompt_chars", utf8.RuneCountInString(prompt))

		start := time.Now()
		actx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := e.Provider.Complete(actx, req)
		cancel()
		if err != nil && ctx.Err() == nil && actx.Err() != nil && !isTimeout(err) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		c.observe(Attempt{Provider: e.Name, Model: usedModel, Number: n + 1, Duration: time.Since(start), Err: err})

		if err == nil {
			e.health.RecordSuccess()
			if resp.Model != "" {
				usedModel = resp.Model
			}
			return Completion{
				Text:     resp.Content,
				Provider: e.Name,
				Model:    usedModel,
				Attempts: n + 1,
				Usage:    resp.Usage,
			}, nil
		}

		if ctx.Err() != nil {
			return Completion{}, fmt.Errorf("provider: %s: %w", e.Name, ctx.Err())
		}
		if !IsRetryable(err) {
			return Completion{}, fmt.Errorf("provider: %s: %w", e.Name, err)
		}

		e.health.RecordFailure()
		lastErr = fmt.Errorf("provider: %s: %w", e.Name, err)
		c.logger.Warn("provider attempt failed", "provider", e.Name, "attempt", n+1, "error", err)
	}
	return Completion{}, fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

// pick returns the first available entry, or the primary when none is.
func (c *Client) pick() *clientEntry {
	for _, e := range c.entries {
		if e.health.IsAvailable() {
			return e
		}
	}
	return c.entries[0]
}

// Health reports every provider's health, in preference order.
func (c *Client) Health() []HealthReport {
	out := make([]HealthReport, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.health.Report(e.Name, e.Provider.ModelName()))
	}
	return out
}

// Start launches the background health probe for unhealthy providers.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	c.done = done
	go func() {
		defer close(done)
		c.runHealthChecks(ctx)
	}()
}

// Stop cancels the health probe and waits for it to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Client) runHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Health.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, e := range c.entries {
				if !e.health.ShouldHealthCheck() {
					continue
				}
				checker, ok := e.Provider.(HealthChecker)
				if !ok {
					continue
				}
				if err := checker.HealthCheck(ctx); err == nil {
					e.health.RecordSuccess()
				}
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
