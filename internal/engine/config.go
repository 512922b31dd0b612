package engine

import (
	"errors"
	"fmt"
	"time"

	ctxengine "github.com/replypass/replypass/internal/context"
	"github.com/replypass/replypass/internal/provider"
	"github.com/replypass/replypass/internal/regen"
	"github.com/replypass/replypass/internal/usage"
)

// Config is the engine.reply module configuration.
type Config struct {
	// Providers lists provider module IDs in preference order. The first is
	// the primary; the rest are fallbacks.
	Providers []string `yaml:"providers"`

	Context      ctxengine.ContextConfig `yaml:"context"`
	Generation   provider.ClientConfig   `yaml:"generation"`
	Plans        map[string]usage.Plan   `yaml:"plans"`
	Regeneration regen.Config            `yaml:"regeneration"`

	// RoleFile optionally replaces the built-in role statement. The file is
	// re-read when it changes.
	RoleFile string `yaml:"role_file"`

	// AuditTimeout bounds the audit write, which outlives caller cancellation.
	AuditTimeout time.Duration `yaml:"audit_timeout"`
}

func (c *Config) defaults() {
	if len(c.Providers) == 0 {
		c.Providers = []string{"provider.gemini"}
	}
	c.Generation = c.Generation.WithDefaults()
	if c.Context.ReservedForReply == 0 {
		c.Context.ReservedForReply = c.Generation.MaxOutputTokens
	}
	c.Context = c.Context.WithDefaults()
	if c.Plans == nil {
		c.Plans = usage.DefaultPlans()
	}
	if c.AuditTimeout <= 0 {
		c.AuditTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	var errs []error
	if err := c.Context.Shares.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Context.CharsPerToken < 0 {
		errs = append(errs, fmt.Errorf("engine: chars_per_token must be positive, got %v", c.Context.CharsPerToken))
	}
	if c.Context.FeedbackPerSide < 0 {
		errs = append(errs, fmt.Errorf("engine: feedback_per_side must not be negative, got %d", c.Context.FeedbackPerSide))
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, id := range c.Providers {
		if seen[id] {
			errs = append(errs, fmt.Errorf("engine: provider %q listed twice", id))
		}
		seen[id] = true
	}
	for name, p := range c.Plans {
		for ut, n := range p.DailyLimits {
			if n < 0 {
				errs = append(errs, fmt.Errorf("engine: plan %q: negative daily limit for %s", name, ut))
			}
		}
	}
	return errors.Join(errs...)
}
