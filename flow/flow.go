// Package flow drives the model/tool loop behind model-backed agents.
//
// A flow repeatedly asks the model for the next assistant turn, executes any
// requested tools, hands their results back to the model and stops once the
// model produces a turn without tool calls. Everything that happens along the
// way is reported as core.Event values.
package flow

import (
	"context"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/model"
	"github.com/hupe1980/agentgate/tool"
)

// Agent defines what a flow needs from the agent it runs for.
type Agent interface {
	// Name returns the agent's display name.
	Name() string

	// Model returns the language model instance.
	Model() model.Model

	// Instructions resolves the system prompt for this run.
	Instructions(ctx context.Context) (string, error)

	// Tools returns the tools offered to the model.
	Tools() tool.Set

	// Streaming reports whether the model should be asked for token deltas.
	Streaming() bool
}

// State is the mutable per-run request state shared with processors.
type State struct {
	Agent    Agent
	Contents []core.Content
	Options  core.GenerationOptions
}

// RequestProcessor processes the request before it is sent to the model.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the model request before execution.
	ProcessRequest(ctx context.Context, req *model.Request, state *State) error
}
