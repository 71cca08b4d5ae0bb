package router

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/router/adapters"
	"github.com/af-corp/protobridge/internal/types"
)

// Registry stores adapters keyed by directed edge (source->target). Keys keep
// their first insertion position; re-registering an edge replaces the
// adapter in place.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]adapters.Adapter
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]adapters.Adapter),
	}
}

// Register stores a under its edge key, replacing any previous adapter for
// the same edge.
func (r *Registry) Register(a adapters.Adapter) {
	key := types.EdgeKey(a.Source(), a.Target())

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[key]; !exists {
		r.order = append(r.order, key)
	}
	r.adapters[key] = a
}

// Unregister removes the adapter for the exact edge and reports whether one
// was present.
func (r *Registry) Unregister(source, target types.Descriptor) bool {
	key := types.EdgeKey(source, target)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[key]; !exists {
		return false
	}
	delete(r.adapters, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// FindAdapter returns the adapter registered for the exact edge or, failing
// that, the first adapter in insertion order whose CanHandle accepts the pair.
func (r *Registry) FindAdapter(source, target types.Descriptor) (adapters.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.adapters[types.EdgeKey(source, target)]; ok {
		return a, true
	}
	for _, key := range r.order {
		if a := r.adapters[key]; a.CanHandle(source, target) {
			return a, true
		}
	}
	return nil, false
}

// Adapters returns a snapshot of all registered adapters in insertion order.
func (r *Registry) Adapters() []adapters.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]adapters.Adapter, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.adapters[key])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Replace swaps in the contents of other. Used on config reload so that
// holders of r observe the new adapter set.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	m := make(map[string]adapters.Adapter, len(other.adapters))
	for k, v := range other.adapters {
		m[k] = v
	}
	order := append([]string(nil), other.order...)
	other.mu.RUnlock()

	r.mu.Lock()
	r.adapters = m
	r.order = order
	r.mu.Unlock()
}

// BuildFromConfig builds a registry from the adapters config. Entries are
// registered in name order so that CanHandle fallback is deterministic.
// Disabled entries are skipped; invalid entries are logged and skipped.
func BuildFromConfig(cfg *config.AdaptersConfig) *Registry {
	registry := NewRegistry()
	if cfg == nil {
		return registry
	}

	names := make([]string, 0, len(cfg.Adapters))
	for name := range cfg.Adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ac := cfg.Adapters[name]
		if ac.Disabled {
			continue
		}
		a, err := adapters.New(ac)
		if err != nil {
			slog.Warn("skipping adapter", "name", name, "error", err)
			continue
		}
		registry.Register(a)
	}
	return registry
}
