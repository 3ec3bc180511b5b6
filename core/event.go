package core

import (
	"github.com/google/uuid"
)

// Event is a single generation event emitted by an agent while it works on a
// request. Concrete event types implement the unexported isEvent marker so the
// set stays closed: TokenDelta, ToolCallEvent, ToolResultEvent, FinalMessage
// and ErrorEvent.
//
// Events of one invocation are ordered and forward-only. A FinalMessage or an
// ErrorEvent ends the sequence.
type Event interface{ isEvent() }

// TokenDelta is an incremental fragment of assistant text.
type TokenDelta struct {
	Text string `json:"text"`
}

func (TokenDelta) isEvent() {}

// ToolCallEvent reports that the agent asked for a tool to be executed.
type ToolCallEvent struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

func (ToolCallEvent) isEvent() {}

// ToolResultEvent reports the outcome of a tool execution. IsError is set when
// the tool failed but the failure was handed back to the model.
type ToolResultEvent struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error,omitempty"`
}

func (ToolResultEvent) isEvent() {}

// FinalMessage completes the assistant turn. Text holds only the part of the
// answer that was not already delivered through TokenDelta events.
type FinalMessage struct {
	Text  string `json:"text,omitempty"`
	Usage *Usage `json:"usage,omitempty"`
}

func (FinalMessage) isEvent() {}

// ErrorEvent terminates the sequence with a failure.
type ErrorEvent struct {
	Err error `json:"-"`
}

func (ErrorEvent) isEvent() {}

// Error implements error so an ErrorEvent can be returned directly.
func (e ErrorEvent) Error() string {
	if e.Err == nil {
		return "unknown agent error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error to errors.Is / errors.As.
func (e ErrorEvent) Unwrap() error { return e.Err }

// Usage captures token accounting reported by a model backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// TotalTokens returns prompt + completion tokens.
func (u Usage) TotalTokens() int { return u.PromptTokens + u.CompletionTokens }

// Add accumulates other into u. A nil receiver is not allowed; a nil other is a no-op.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// IsTerminal reports whether ev ends an event sequence.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case FinalMessage, ErrorEvent:
		return true
	default:
		return false
	}
}

// NewID generates a new unique identifier for invocations and tool calls.
func NewID() string { return uuid.NewString() }
