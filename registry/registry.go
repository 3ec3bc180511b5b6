// Package registry holds the process-wide mapping from agent names to their
// constructors and resolves requested model names to a registered agent.
//
// Plugins register from init() via MustRegister. The server seals the registry
// before it starts listening; afterwards the registry is read-only and safe
// for concurrent lookups.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentgate/core"
)

// Resolution is the outcome of resolving a requested model name.
type Resolution struct {
	Name        string           // Registered agent name that will handle the request
	Requested   string           // Model name as sent by the client
	Constructor core.Constructor // Constructor of the resolved agent
	Fallback    bool             // True when Name is the default, not an exact match
}

// Registry maps agent names to constructors.
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]core.Constructor
	defaultName string
	sealed      bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]core.Constructor)}
}

// Register adds a constructor under name.
func (r *Registry) Register(name string, ctor core.Constructor) error {
	if name == "" {
		return errors.New("agent name must not be empty")
	}
	if ctor == nil {
		return fmt.Errorf("agent %q: constructor must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", core.ErrRegistrySealed, name)
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %q", core.ErrDuplicateAgent, name)
	}

	r.entries[name] = ctor

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, ctor core.Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}

// Lookup returns the constructor registered under name.
func (r *Registry) Lookup(name string) (core.Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctor, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrAgentNotFound, name)
	}

	return ctor, nil
}

// SetDefault selects the agent used for unknown model names. The agent must
// already be registered and the registry must not be sealed.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot change default agent to %q", core.ErrRegistrySealed, name)
	}
	if _, ok := r.entries[name]; !ok {
		return fmt.Errorf("default agent: %w: %q", core.ErrAgentNotFound, name)
	}

	r.defaultName = name

	return nil
}

// Default returns the configured default agent.
func (r *Registry) Default() (string, core.Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultName == "" {
		return "", nil, fmt.Errorf("%w: no default agent configured", core.ErrAgentNotFound)
	}

	return r.defaultName, r.entries[r.defaultName], nil
}

// Resolve maps a requested model name to a registered agent. An exact match
// wins; otherwise the default agent is returned with Fallback set.
func (r *Registry) Resolve(requested string) (Resolution, error) {
	r.mu.RLock()
	ctor, ok := r.entries[requested]
	r.mu.RUnlock()

	if ok {
		return Resolution{Name: requested, Requested: requested, Constructor: ctor}, nil
	}

	name, ctor, err := r.Default()
	if err != nil {
		return Resolution{}, fmt.Errorf("model %q: %w", requested, err)
	}

	return Resolution{Name: name, Requested: requested, Constructor: ctor, Fallback: true}, nil
}

// Names returns the registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Seal makes the registry read-only. Calling Seal more than once is a no-op.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sealed
}
