package core

import "context"

// Agent is a single-use conversational unit created for one request.
//
// Run starts the agent and returns an event channel plus an error channel.
// Implementations must:
//   - close the event channel when they are done
//   - send at most one error, on a buffered error channel, after their last event
//   - stop promptly when ctx is cancelled
type Agent interface {
	Name() string
	Run(ctx context.Context) (<-chan Event, <-chan error)
}

// Constructor creates an agent for one request. userMessage is the latest user
// message (possibly empty) and conv the prior history.
type Constructor interface {
	New(userMessage string, conv *Conversation) (Agent, error)
}

// ConstructorFunc adapts an ordinary function to the Constructor interface.
type ConstructorFunc func(userMessage string, conv *Conversation) (Agent, error)

// New implements Constructor.
func (f ConstructorFunc) New(userMessage string, conv *Conversation) (Agent, error) {
	return f(userMessage, conv)
}
