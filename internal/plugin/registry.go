package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/R3E-Network/provider-daemon/internal/backend"
)

// Factory builds a ServiceBackend from its BACKEND_CONFIG_<tag> key/value
// pairs. Each backend kind registers one via init().
type Factory func(cfg map[string]string) (backend.ServiceBackend, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]entry)
)

type entry struct {
	factory Factory
	info    Info
}

// Register adds a backend factory under kind. Panics on a duplicate kind,
// since that can only happen from a programming error in an init() func.
func Register(kind string, info Info, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("plugin: backend kind %q already registered", kind))
	}

	info.Kind = kind
	registry[kind] = entry{factory: factory, info: info}
}

// Get returns the factory registered for kind.
func Get(kind string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()

	e, ok := registry[kind]
	if !ok {
		return nil, false
	}
	return e.factory, true
}

// MustGet returns the factory registered for kind, panicking with the list
// of available kinds if none matches — main.go's BACKEND_KIND resolution
// is a boot-time fatal condition, not a recoverable one.
func MustGet(kind string) Factory {
	factory, ok := Get(kind)
	if !ok {
		panic(fmt.Sprintf("plugin: backend kind %q not registered. Available: %v", kind, List()))
	}
	return factory
}

// List returns every registered backend kind in sorted order.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
