package cron

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/replypass/replypass/internal/core"
	"github.com/replypass/replypass/internal/store"
)

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

// Config is the cron.maintenance configuration.
type Config struct {
	// UsageRetentionDays keeps this many days of usage counters. Default 35.
	UsageRetentionDays int `yaml:"usage_retention_days"`

	// UsagePruneSchedule overrides the prune job schedule.
	UsagePruneSchedule string `yaml:"usage_prune_schedule"`
}

// Module is the cron.maintenance module.
type Module struct {
	config    Config
	appCtx    *core.AppContext
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron.maintenance",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron.maintenance: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	if m.config.UsageRetentionDays == 0 {
		m.config.UsageRetentionDays = 35
	}
	m.scheduler = NewScheduler(ctx.Logger)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.UsageRetentionDays < 2 {
		return fmt.Errorf("cron.maintenance: usage_retention_days must be at least 2, got %d", m.config.UsageRetentionDays)
	}
	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	counters, ok := core.ServiceAs[store.UsageCounters](m.appCtx, store.ServiceUsageCounters)
	if !ok {
		counters, ok = core.ServiceAs[store.UsageCounters](m.appCtx, store.ServiceStore)
	}
	if !ok {
		return errors.New("cron.maintenance: no usage counters available")
	}
	if err := m.scheduler.RegisterJob(&UsagePruneJob{
		Counters:     counters,
		Retention:    m.config.UsageRetentionDays,
		Logger:       m.appCtx.Logger,
		ScheduleExpr: m.config.UsagePruneSchedule,
	}); err != nil {
		return err
	}
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}

// Scheduler exposes the scheduler for manual runs.
func (m *Module) Scheduler() *Scheduler { return m.scheduler }
