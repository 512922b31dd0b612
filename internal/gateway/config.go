package gateway

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/replypass/replypass/internal/security"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind       string                   `yaml:"bind"`
	Auth       AuthConfig               `yaml:"auth"`
	RateLimits security.RateLimitConfig `yaml:"rate_limits"`

	// AuditLog is a JSONL file for security events, relative to the data
	// directory unless absolute. Empty disables the file.
	AuditLog string `yaml:"audit_log"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout must cover a full generation including retries.
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// defaults fills zero values.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 64 << 10
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.RateLimits.AuthFailuresPerMinute == 0 {
		c.RateLimits.AuthFailuresPerMinute = 10
	}
}

func (c *Config) validate() error {
	addr, err := net.ResolveTCPAddr("tcp", c.Bind)
	if err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %w", c.Bind, err)
	}
	if !c.Auth.IsConfigured() && (addr.IP == nil || !addr.IP.IsLoopback()) {
		return errors.New("gateway: auth is required when binding beyond loopback")
	}
	return nil
}

// AuthConfig configures caller authentication for /api and /status.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured reports whether any auth method is set.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
