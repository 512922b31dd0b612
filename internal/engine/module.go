package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/replypass/replypass/internal/core"
	"github.com/replypass/replypass/internal/prompt"
	"github.com/replypass/replypass/internal/provider"
	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/internal/telemetry"
	"github.com/replypass/replypass/internal/usage"
)

// ServiceName is the AppContext key of the running *Engine.
const ServiceName = "engine"

func init() {
	core.RegisterModule(&Module{})
}

// Interface guards.
var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module is the engine.reply module. It wires the configured store,
// usage counters and providers into an Engine.
type Module struct {
	config Config
	appCtx *core.AppContext
	logger *slog.Logger
	client *provider.Client
	engine *Engine
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "engine.reply",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("engine.reply: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger
	m.config.defaults()
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter.
func (m *Module) Start() error {
	st, ok := core.ServiceAs[store.Store](m.appCtx, store.ServiceStore)
	if !ok {
		return errors.New("engine.reply: no store module loaded")
	}
	counters, ok := core.ServiceAs[store.UsageCounters](m.appCtx, store.ServiceUsageCounters)
	if !ok {
		counters = st
	}

	entries := make([]provider.Entry, 0, len(m.config.Providers))
	for _, id := range m.config.Providers {
		p, ok := core.ServiceAs[provider.Provider](m.appCtx, id)
		if !ok {
			return fmt.Errorf("engine.reply: provider %q is not loaded", id)
		}
		entries = append(entries, provider.Entry{Name: id, Provider: p})
	}

	reg, _ := core.ServiceAs[prometheus.Registerer](m.appCtx, telemetry.ServiceMetrics)
	metrics, err := NewMetrics(reg)
	if err != nil {
		return err
	}

	client, err := provider.NewClient(entries, m.config.Generation,
		provider.WithLogger(m.logger.With("component", "provider")),
		provider.WithObserver(metrics.ObserveAttempt),
	)
	if err != nil {
		return fmt.Errorf("engine.reply: %w", err)
	}

	var roles prompt.RoleSource
	if m.config.RoleFile != "" {
		roles = prompt.NewRoleFile(m.config.RoleFile)
	}

	limiter := usage.NewLimiter(st, counters, m.config.Plans,
		usage.WithLogger(m.logger.With("component", "usage")))

	eng, err := New(m.config, Deps{
		Store:   st,
		Limiter: limiter,
		Client:  client,
		Roles:   roles,
		Metrics: metrics,
		Logger:  m.logger,
	})
	if err != nil {
		return err
	}

	client.Start(context.Background())
	m.client, m.engine = client, eng
	m.appCtx.RegisterService(ServiceName, eng)
	m.logger.Info("reply engine started", "providers", m.config.Providers, "window_tokens", client.ContextWindowSize())
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(context.Context) error {
	if m.client != nil {
		m.client.Stop()
	}
	return nil
}

// Engine returns the running engine, or nil before Start.
func (m *Module) Engine() *Engine { return m.engine }
