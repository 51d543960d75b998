package probe

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps probe kinds to implementations. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]Probe)}
}

// Register adds p under kind.
func (r *Registry) Register(kind string, p Probe) error {
	if kind == "" || p == nil {
		return fmt.Errorf("probe kind and implementation are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.probes[kind]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateKind, kind)
	}
	r.probes[kind] = p
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(kind string, p Probe) {
	if err := r.Register(kind, p); err != nil {
		panic(err)
	}
}

// Lookup returns the probe for kind, or false.
func (r *Registry) Lookup(kind string) (Probe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.probes[kind]
	return p, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.probes))
	for k := range r.probes {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
