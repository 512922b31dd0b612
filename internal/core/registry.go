package core

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrUnknownModule is returned when an ID has no registered module.
var ErrUnknownModule = errors.New("core: unknown module")

var registry = struct {
	sync.RWMutex
	byID map[ModuleID]ModuleInfo
}{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule adds a module to the global registry. Call it from init();
// an empty ID, a nil constructor or a duplicate ID panics.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.byID[info.ID]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	registry.byID[info.ID] = info
}

// Lookup returns the registration for id.
func Lookup(id string) (ModuleInfo, error) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.byID[ModuleID(id)]
	if !ok {
		return ModuleInfo{}, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	return info, nil
}

// Modules returns every registration ordered by ID.
func Modules() []ModuleInfo {
	registry.RLock()
	defer registry.RUnlock()
	return slices.SortedFunc(maps.Values(registry.byID), func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

func resetRegistry() {
	registry.Lock()
	defer registry.Unlock()
	clear(registry.byID)
}
