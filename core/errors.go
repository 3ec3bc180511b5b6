package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateAgent is returned when an agent name is registered twice.
	ErrDuplicateAgent = errors.New("agent already registered")
	// ErrAgentNotFound is returned when no agent (and no default) matches a name.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrRegistrySealed is returned for registrations after startup completed.
	ErrRegistrySealed = errors.New("agent registry is sealed")
	// ErrMalformedHistory is returned when the request history cannot be
	// converted into a conversation.
	ErrMalformedHistory = errors.New("malformed message history")
)

// InvocationError reports that an agent could not be constructed or started,
// for example because the backend model is misconfigured.
type InvocationError struct {
	Agent string
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent %q invocation failed: %v", e.Agent, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panicking agent or constructor.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", e.Value) }
