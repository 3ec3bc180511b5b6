package agent

import (
	"errors"
	"sync/atomic"

	"github.com/hupe1980/agentgate/core"
)

// ErrAlreadyRun is returned when a single-use agent is run a second time.
var ErrAlreadyRun = errors.New("agent has already been run")

// BaseAgent bundles the identity and single-use guard shared by the agent
// implementations. Embed it and supply a Run method to satisfy core.Agent.
type BaseAgent struct {
	name        string
	description string
	started     atomic.Bool
}

// NewBaseAgent constructs a BaseAgent.
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{name: name}
}

// Name returns the agent name.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a short description of the agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// start marks the agent as running. Only the first call succeeds.
func (b *BaseAgent) start() error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	return nil
}

// failed returns already closed channels carrying err.
func failed(err error) (<-chan core.Event, <-chan error) {
	events := make(chan core.Event)
	errs := make(chan error, 1)
	errs <- err
	close(events)
	close(errs)
	return events, errs
}
