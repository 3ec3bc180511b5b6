// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, lookups) with schema
// validated arguments and consistent error handling.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/agentgate/internal/util"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Return *ToolError for failures the model should see
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description is provided to the model to help it decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with already decoded arguments.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeTimeout    = "TIMEOUT"
)

// ToolError represents errors that occur during tool execution.
//
// A non-fatal ToolError is reported back to the model as the tool result so
// the model can recover. A fatal ToolError aborts the agent run.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Fatal   bool   `json:"fatal,omitempty"`   // Abort the agent run instead of reflecting
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new non-fatal ToolError.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// NewFatalToolError creates a ToolError that stops the agent run.
func NewFatalToolError(tool, message, code string) *ToolError {
	e := NewToolError(tool, message, code)
	e.Fatal = true
	return e
}

// IsFatal reports whether err is (or wraps) a fatal ToolError.
func IsFatal(err error) bool {
	var te *ToolError
	return errors.As(err, &te) && te.Fatal
}

// Set is a name indexed collection of tools.
type Set map[string]Tool

// NewSet indexes tools by name. Later tools replace earlier ones with the same name.
func NewSet(tools ...Tool) Set {
	s := make(Set, len(tools))
	for _, t := range tools {
		s[t.Name()] = t
	}
	return s
}

// Get returns the tool registered under name.
func (s Set) Get(name string) (Tool, bool) {
	t, ok := s[name]
	return t, ok
}

// Names returns the tool names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
