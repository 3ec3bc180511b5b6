package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentgate/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by flows.
type Request struct {
	Instructions string                 `json:"instructions"` // System prompt prepended by the provider
	Contents     []core.Content         `json:"contents"`     // Conversation converted to provider messages
	Tools        []ToolDefinition       `json:"tools,omitempty"`
	Stream       bool                   `json:"stream,omitempty"`
	Options      core.GenerationOptions `json:"-"` // Per-request overrides of the adapter defaults
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"` // Incremental delta; the final response carries the full turn
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *core.Usage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name            string `json:"name"`
	Provider        string `json:"provider"` // "openai", "anthropic", "gemini", "mock"
	Family          string `json:"family,omitempty"`
	SupportsTools   bool   `json:"supports_tools"`
	SupportsJSON    bool   `json:"supports_json,omitempty"`
	SupportsVision  bool   `json:"supports_vision,omitempty"`
	SupportsStreams bool   `json:"supports_streams"`
}

// Model is the minimal interface required by flows & agents to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Closer is implemented by models holding network resources.
type Closer interface {
	Close() error
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
//
// Turns queued with AddTurn are replayed in order, one per Generate call.
// Once the queue is empty the model echoes the last text it was given.
type MockModel struct {
	info Info

	mu       sync.Mutex
	turns    []Response
	requests []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:            name,
			Provider:        provider,
			SupportsTools:   true,
			SupportsStreams: true,
		},
	}
}

// AddTurn queues a canned assistant turn.
func (m *MockModel) AddTurn(content core.Content, usage *core.Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	finish := "stop"
	if len(content.FunctionCalls()) > 0 {
		finish = "tool_calls"
	}
	if content.Role == "" {
		content.Role = core.RoleAssistant
	}
	m.turns = append(m.turns, Response{Content: content, FinishReason: finish, Usage: usage})
}

// AddText queues a plain text assistant turn.
func (m *MockModel) AddText(text string) {
	m.AddTurn(core.NewTextContent(core.RoleAssistant, text), nil)
}

// AddToolCall queues an assistant turn requesting a single tool call.
func (m *MockModel) AddToolCall(id, name, args string) {
	m.AddTurn(core.Content{Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
		ID:        id,
		Name:      name,
		Arguments: args,
	}}}}, nil)
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

func (m *MockModel) next(req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if len(m.turns) > 0 {
		turn := m.turns[0]
		m.turns = m.turns[1:]
		return turn, nil
	}
	if len(req.Contents) == 0 {
		return Response{}, fmt.Errorf("no contents provided")
	}
	last := req.Contents[len(req.Contents)-1]
	return Response{
		Content:      core.NewTextContent(core.RoleAssistant, fmt.Sprintf("Mock response to: %s", last.Text())),
		FinishReason: "stop",
	}, nil
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		turn, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}

		if req.Stream {
			for _, r := range turn.Content.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, string(r)),
				}:
				}
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- turn:
		}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
