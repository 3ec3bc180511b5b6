package testutil

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/agentgate/core"
)

// StubAgent replays a fixed event sequence and then optionally returns Err.
type StubAgent struct {
	AgentName string
	Events    []core.Event
	Err       error
	// Panic makes Run panic with this value instead of returning.
	Panic any
	// Block makes the agent wait for ctx cancellation after its events.
	Block bool

	// Cancelled is set once the agent observed ctx cancellation.
	Cancelled atomic.Bool
}

// Name implements core.Agent.
func (a *StubAgent) Name() string { return a.AgentName }

// Run implements core.Agent.
func (a *StubAgent) Run(ctx context.Context) (<-chan core.Event, <-chan error) {
	if a.Panic != nil {
		panic(a.Panic)
	}

	events := make(chan core.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(events)

		for _, ev := range a.Events {
			select {
			case events <- ev:
			case <-ctx.Done():
				a.Cancelled.Store(true)
				errs <- ctx.Err()
				return
			}
		}
		if a.Block {
			<-ctx.Done()
			a.Cancelled.Store(true)
			errs <- ctx.Err()
			return
		}
		if a.Err != nil {
			errs <- a.Err
		}
	}()

	return events, errs
}

// Recorder is a core.Constructor that hands out a prepared agent and records
// the arguments it was called with.
type Recorder struct {
	Agent core.Agent
	Err   error
	Panic any

	Calls       int
	UserMessage string
	Conv        *core.Conversation
}

// New implements core.Constructor.
func (r *Recorder) New(userMessage string, conv *core.Conversation) (core.Agent, error) {
	r.Calls++
	r.UserMessage = userMessage
	r.Conv = conv
	if r.Panic != nil {
		panic(r.Panic)
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Agent, nil
}

// ConstructorFor returns a constructor creating a fresh StubAgent with events
// on every call.
func ConstructorFor(name string, events ...core.Event) core.Constructor {
	return core.ConstructorFunc(func(string, *core.Conversation) (core.Agent, error) {
		return &StubAgent{AgentName: name, Events: events}, nil
	})
}
