package registry

import "github.com/hupe1980/agentgate/core"

var global = New()

// Global returns the process-wide registry plugins register into.
func Global() *Registry { return global }

// Register adds a constructor to the process-wide registry.
func Register(name string, ctor core.Constructor) error { return global.Register(name, ctor) }

// MustRegister adds a constructor to the process-wide registry and panics on
// error. Intended for use from plugin init functions.
func MustRegister(name string, ctor core.Constructor) { global.MustRegister(name, ctor) }

// RegisterFunc registers a plain constructor function in the process-wide registry.
func RegisterFunc(name string, fn func(userMessage string, conv *core.Conversation) (core.Agent, error)) {
	global.MustRegister(name, core.ConstructorFunc(fn))
}
