package provider

import (
	"fmt"
	"sync"
)

// Registry manages the configured provider clients, indexed by stable name.
// Registration order is preserved: PresentChoices offers providers in the
// order they were registered.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Client
	ordered []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Client)}
}

// Register adds a client. Names are unique; re-registering is an error.
func (r *Registry) Register(c Client) error {
	name := c.Descriptor().Name
	if name == "" {
		return fmt.Errorf("provider: registro sin name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("provider: ya registrado: %s", name)
	}
	r.byName[name] = c
	r.ordered = append(r.ordered, name)
	return nil
}

// Get returns the client for a provider name.
func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// All returns every registered client in registration order.
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.ordered))
	for _, name := range r.ordered {
		out = append(out, r.byName[name])
	}
	return out
}

// Enabled returns the enabled clients in registration order.
func (r *Registry) Enabled() []Client {
	var out []Client
	for _, c := range r.All() {
		if c.Descriptor().Enabled {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}
