package gemini

import (
	"fmt"
	"os"
	"time"
)

const apiKeyEnv = "GEMINI_API_KEY"

// Config holds the configuration for the Gemini provider module.
type Config struct {
	// APIKey falls back to $GEMINI_API_KEY.
	APIKey string `yaml:"api_key"`

	// Model is the default model; requests may override it per plan.
	Model string `yaml:"model"`

	// BaseURL overrides the Gemini API endpoint.
	BaseURL string `yaml:"base_url"`

	Timeout       time.Duration `yaml:"timeout"`
	ContextWindow int           `yaml:"context_window"`

	// JSONOutput asks the model for an application/json response.
	JSONOutput bool `yaml:"json_output"`
}

func (c *Config) defaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv(apiKeyEnv)
	}
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("provider.gemini: api_key is required (or set %s)", apiKeyEnv)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("provider.gemini: timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// knownContextWindows maps model names to their input window in tokens.
var knownContextWindows = map[string]int{
	"gemini-2.0-flash":      1048576,
	"gemini-2.0-flash-lite": 1048576,
	"gemini-2.5-flash":      1048576,
	"gemini-2.5-flash-lite": 1048576,
	"gemini-2.5-pro":        1048576,
}
