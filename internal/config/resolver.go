package config

import (
	"cmp"
	"slices"

	"github.com/replypass/replypass/internal/core"
)

// namespaceOrder is the load order of module namespaces. Modules that publish
// services load before the modules that consume them.
var namespaceOrder = map[string]int{
	"telemetry": 0,
	"store":     1,
	"usage":     2,
	"provider":  3,
	"engine":    4,
	"cron":      5,
	"gateway":   6,
}

// Resolve returns the module IDs from the configuration in load order:
// by namespace rank, then by ID. Unknown namespaces load last.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(rank(a), rank(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

func rank(id string) int {
	if r, ok := namespaceOrder[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return len(namespaceOrder)
}
