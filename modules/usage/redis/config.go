package redis

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultKeyPrefix   = "replypass"
	defaultTTL         = 48 * time.Hour
	defaultDialTimeout = 5 * time.Second
)

// Config holds the usage.redis module configuration.
type Config struct {
	// URL is a redis:// or rediss:// URL. Takes precedence over Addr.
	URL string `yaml:"url"`

	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// KeyPrefix namespaces every counter key. Defaults to "replypass".
	KeyPrefix string `yaml:"key_prefix"`

	// TTL is how long a daily counter lives after its first increment.
	// It must cover a full day in the furthest timezone. Defaults to 48h.
	TTL time.Duration `yaml:"ttl"`

	DialTimeout time.Duration `yaml:"dial_timeout"`
}

func (c *Config) defaults() {
	if c.URL == "" && c.Addr == "" {
		c.Addr = "127.0.0.1:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaultKeyPrefix
	}
	if c.TTL == 0 {
		c.TTL = defaultTTL
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.TTL < 26*time.Hour {
		errs = append(errs, fmt.Errorf("usage.redis: ttl must be at least 26h, got %s", c.TTL))
	}
	if c.DB < 0 {
		errs = append(errs, errors.New("usage.redis: db must be non-negative"))
	}
	return errors.Join(errs...)
}
