package breaker

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the breakers of one process by name.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*CircuitBreaker)}
}

// Register adds cb. Names must be unique.
func (r *Registry) Register(cb *CircuitBreaker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.breakers[cb.Name()]; ok {
		return fmt.Errorf("breaker %q already registered", cb.Name())
	}
	r.breakers[cb.Name()] = cb
	return nil
}

// Get returns the breaker registered under name.
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// Snapshots returns a snapshot of every breaker, sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	list := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		list = append(list, cb)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })

	out := make([]Snapshot, len(list))
	for i, cb := range list {
		out[i] = cb.Snapshot()
	}
	return out
}

// OpenCircuits returns the names of breakers currently open, sorted.
func (r *Registry) OpenCircuits() []string {
	var open []string
	for _, s := range r.Snapshots() {
		if s.State == StateOpen {
			open = append(open, s.Name)
		}
	}
	return open
}
