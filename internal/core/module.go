package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// ModuleID is the namespaced identifier of a module, e.g. "store.sqlite".
type ModuleID string

// Namespace returns the part before the first dot ("store" for "store.sqlite").
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID is the unique module identifier used as the config key.
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}

// Module is implemented by every unit the App manages. Optional lifecycle
// behavior is added by implementing Configurable, Provisioner, Validator,
// Starter and Stopper.
type Module interface {
	ModuleInfo() ModuleInfo
}

// Configurable receives the module's section of the modules: map before
// Provision. Modules without a section are not called.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner applies defaults, opens connections and registers services.
// Peer services may not exist yet; resolve them in Start.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks the provisioned module. It must not mutate state.
type Validator interface {
	Validate() error
}

// Starter resolves peer services and launches background work. Start runs
// in load order once every module has been provisioned.
type Starter interface {
	Start() error
}

// Stopper releases what the module holds. Stop runs in reverse load order.
type Stopper interface {
	Stop(ctx context.Context) error
}
