package openai

import (
	"fmt"
	"time"
)

// Config holds the configuration for the OpenAI provider module.
type Config struct {
	APIKey        string   `yaml:"api_key"`
	Model         string   `yaml:"model"`
	BaseURL       string   `yaml:"base_url"`
	MaxTokens     int      `yaml:"max_tokens"`
	Temperature   *float64 `yaml:"temperature"`
	Timeout       string   `yaml:"timeout"`
	ContextWindow int      `yaml:"context_window"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
}

// parsedTimeout assumes validateTimeout passed.
func (c *Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func (c *Config) validateTimeout() error {
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("provider.openai: invalid timeout %q: %w", c.Timeout, err)
	}
	return nil
}

// knownContextWindows maps model names to their context window in tokens.
var knownContextWindows = map[string]int{
	"gpt-4o":       128000,
	"gpt-4o-mini":  128000,
	"gpt-4-turbo":  128000,
	"gpt-4.1":      1047576,
	"gpt-4.1-mini": 1047576,
	"gpt-4.1-nano": 1047576,
	"o3-mini":      200000,
	"o4-mini":      200000,
}
