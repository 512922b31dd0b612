package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStopTimeout bounds the whole shutdown sequence.
const DefaultStopTimeout = 30 * time.Second

// App owns a set of loaded modules and drives them through Start and Stop.
// Signal handling belongs to the caller.
type App struct {
	ctx     *AppContext
	logger  *slog.Logger
	modules []*loaded

	// StopTimeout overrides DefaultStopTimeout when positive.
	StopTimeout time.Duration
}

type loaded struct {
	id      ModuleID
	module  Module
	running bool
}

// NewApp returns an App that loads modules through ctx.
func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

// LoadModules configures, provisions and validates the modules in order.
// On failure every module loaded so far is stopped and the App is left empty.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.release(len(a.modules)-1, true)
			a.modules = nil
			return fmt.Errorf("core: loading %s: %w", id, err)
		}
		a.modules = append(a.modules, &loaded{id: mod.ModuleInfo().ID, module: mod})
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, l := range a.modules {
		if string(l.id) == id {
			return l.module, true
		}
	}
	return nil, false
}

// Start runs Start on every Starter in load order. If one fails, the modules
// before it are stopped in reverse order.
func (a *App) Start() error {
	for i, l := range a.modules {
		if s, ok := l.module.(Starter); ok {
			a.logger.Info("starting module", "module", string(l.id))
			if err := s.Start(); err != nil {
				a.logger.Error("module start failed", "module", string(l.id), "error", err)
				a.release(i-1, false)
				return fmt.Errorf("core: starting %s: %w", l.id, err)
			}
		}
		// Provision-only modules still own resources released on Stop.
		l.running = true
	}
	a.logger.Info("all modules started", "count", len(a.modules))
	return nil
}

// Stop stops every running module in reverse load order.
func (a *App) Stop() {
	a.release(len(a.modules)-1, false)
}

// release calls Stop on modules[from] down to modules[0]. Unless all is
// set, modules that never started are skipped.
func (a *App) release(from int, all bool) {
	timeout := a.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i := from; i >= 0; i-- {
		l := a.modules[i]
		if !l.running && !all {
			continue
		}
		l.running = false
		s, ok := l.module.(Stopper)
		if !ok {
			continue
		}
		a.logger.Info("stopping module", "module", string(l.id))
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop error", "module", string(l.id), "error", err)
		}
	}
}
