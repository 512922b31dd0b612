package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/replypass/replypass/internal/core"
)

// Validate checks the structural validity of a Config: the version field,
// that every referenced module ID is registered, and the module topology
// (exactly one store, at least one provider when the engine is enabled).
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, err := core.Lookup(id); err != nil {
			errs = append(errs, fmt.Errorf("config: %w", err))
		}
	}

	errs = append(errs, validateTopology(cfg)...)

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q must be text or json", cfg.Log.Format))
	}

	return errors.Join(errs...)
}

func validateTopology(cfg *Config) []error {
	counts := make(map[string]int)
	for id := range cfg.Modules {
		counts[core.ModuleID(id).Namespace()]++
	}

	var errs []error
	if counts["store"] > 1 {
		errs = append(errs, fmt.Errorf("config: %d store modules configured, want at most one", counts["store"]))
	}
	if counts["usage"] > 1 {
		errs = append(errs, fmt.Errorf("config: %d usage modules configured, want at most one", counts["usage"]))
	}
	if counts["engine"] > 0 {
		if counts["store"] == 0 {
			errs = append(errs, errors.New("config: engine requires a store module"))
		}
		if counts["provider"] == 0 {
			errs = append(errs, errors.New("config: engine requires at least one provider module"))
		}
	}
	if counts["gateway"] > 0 && counts["engine"] == 0 {
		errs = append(errs, errors.New("config: gateway requires the engine module"))
	}
	return errs
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", name)
	}
}
