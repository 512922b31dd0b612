package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/replypass/replypass/internal/core"
	"github.com/replypass/replypass/internal/store"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module is the usage.redis module. It publishes Counters under
// store.ServiceUsageCounters, which the engine prefers over the main store.
type Module struct {
	config   Config
	logger   *slog.Logger
	client   *goredis.Client
	counters *Counters
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "usage.redis",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("usage.redis: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. No connection is made here.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	if err := m.config.validate(); err != nil {
		return err
	}
	m.logger = ctx.Logger

	opts := &goredis.Options{Addr: m.config.Addr, Password: m.config.Password, DB: m.config.DB}
	if m.config.URL != "" {
		parsed, err := goredis.ParseURL(m.config.URL)
		if err != nil {
			return fmt.Errorf("usage.redis: parse url: %w", err)
		}
		opts = parsed
	}
	opts.DialTimeout = m.config.DialTimeout

	m.client = goredis.NewClient(opts)
	m.counters = NewCounters(m.client, m.config.KeyPrefix, int64(m.config.TTL.Seconds()))
	ctx.RegisterService(store.ServiceUsageCounters, m.counters)

	m.logger.Info("redis usage counters provisioned", "addr", opts.Addr, "prefix", m.config.KeyPrefix)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.DialTimeout)
	defer cancel()
	if err := m.counters.Ping(ctx); err != nil {
		return fmt.Errorf("usage.redis: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Counters returns the provisioned counters, or nil before Provision.
func (m *Module) Counters() *Counters { return m.counters }
