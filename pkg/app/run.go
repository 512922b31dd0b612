// Package app provides the shared entry point of the replypass binary.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/replypass/replypass/internal/config"
	"github.com/replypass/replypass/internal/core"
	"github.com/replypass/replypass/internal/security"
)

// RunParams configures the application.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides log.level from the configuration when set.
	LogLevel string

	// LogOutput receives log records. Defaults to stderr.
	LogOutput io.Writer

	// ExcludeNamespaces skips configured modules in these namespaces, e.g.
	// "gateway" for one-shot CLI commands.
	ExcludeNamespaces []string
}

// Runtime is a loaded, not yet started application.
type Runtime struct {
	App      *core.App
	Context  *core.AppContext
	Config   *config.Config
	Logger   *slog.Logger
	Redactor *security.Redactor
	Modules  []string
}

// Setup loads and validates configuration, builds the redacting logger and
// the shared services, then loads every configured module.
func Setup(params RunParams) (*Runtime, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	redactor := security.NewRedactor(collectSecrets(cfg)...)
	logger, err := newLogger(cfg.Log, params, redactor)
	if err != nil {
		return nil, err
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	registerServices(appCtx, redactor)

	ids := slices.DeleteFunc(config.Resolve(cfg), func(id string) bool {
		return slices.Contains(params.ExcludeNamespaces, core.ModuleID(id).Namespace())
	})

	application := core.NewApp(appCtx)
	if err := application.LoadModules(ids); err != nil {
		return nil, err
	}

	return &Runtime{
		App:      application,
		Context:  appCtx,
		Config:   cfg,
		Logger:   logger,
		Redactor: redactor,
		Modules:  ids,
	}, nil
}

// Run starts all modules and blocks until ctx is done or SIGINT/SIGTERM
// arrives, then stops them in reverse order.
func Run(ctx context.Context, params RunParams) error {
	rt, err := Setup(params)
	if err != nil {
		return err
	}
	rt.Logger.Info("starting replypass", "version", params.Version, "commit", params.Commit, "modules", len(rt.Modules))

	if err := rt.App.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		rt.Logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		rt.Logger.Info("shutdown requested")
	}
	rt.App.Stop()
	rt.Logger.Info("shutdown complete")
	return nil
}

func newLogger(lc config.LogConfig, params RunParams, redactor *security.Redactor) (*slog.Logger, error) {
	levelName := lc.Level
	if params.LogLevel != "" {
		levelName = params.LogLevel
	}
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if lc.Format == "json" {
		inner = slog.NewJSONHandler(out, opts)
	} else {
		inner = slog.NewTextHandler(out, opts)
	}
	// Every record passes through the redactor before it is written.
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/replypass/replypass.yaml → ~/.config/replypass/replypass.yaml → ./replypass.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "replypass", "replypass.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "replypass", "replypass.yaml"))
	}

	candidates = append(candidates, "replypass.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/replypass if set, otherwise ~/.local/share/replypass.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "replypass")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "replypass")
}
