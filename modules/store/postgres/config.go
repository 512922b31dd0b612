package postgres

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	defaultMaxConns       = 10
	defaultConnectTimeout = 5 * time.Second
	dsnEnv                = "REPLYPASS_POSTGRES_DSN"
)

// Config holds the store.postgres module configuration.
type Config struct {
	// DSN is a libpq connection string or URL. Falls back to
	// $REPLYPASS_POSTGRES_DSN when empty.
	DSN string `yaml:"dsn"`

	// MaxConns caps the pool size. Defaults to 10.
	MaxConns int32 `yaml:"max_conns"`

	// ConnectTimeout bounds the initial connection. Defaults to 5s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

func (c *Config) defaults() {
	if c.DSN == "" {
		c.DSN = os.Getenv(dsnEnv)
	}
	if c.MaxConns == 0 {
		c.MaxConns = defaultMaxConns
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.DSN == "" {
		errs = append(errs, fmt.Errorf("store.postgres: dsn is required (or set %s)", dsnEnv))
	}
	if c.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("store.postgres: max_conns must be non-negative, got %d", c.MaxConns))
	}
	if c.ConnectTimeout < 0 {
		errs = append(errs, errors.New("store.postgres: connect_timeout must be non-negative"))
	}
	return errors.Join(errs...)
}
