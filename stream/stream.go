// Package stream adapts an agent's event sequence to the OpenAI chat
// completion wire format: either one aggregated result or a sequence of
// Server-Sent-Event chunks terminated by exactly one "data: [DONE]".
package stream

import (
	"context"
	"errors"
	"strings"

	"github.com/hupe1980/agentgate/api"
	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/tool"
)

// Result is the aggregated outcome of a non-streaming request.
type Result struct {
	Text         string
	Usage        *core.Usage
	FinishReason string
}

// Aggregate consumes events until the sequence ends. The returned text is
// the concatenation of all TokenDelta texts followed by the FinalMessage
// text. Tool events never contribute to the text. An ErrorEvent aborts the
// aggregation and its error is returned; there is no partial success.
//
// A sequence that ends without a FinalMessage is treated as if it ended
// with an empty one.
func Aggregate(ctx context.Context, events <-chan core.Event) (Result, error) {
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return Result{Text: b.String(), FinishReason: api.FinishReasonStop}, nil
			}
			switch e := ev.(type) {
			case core.TokenDelta:
				b.WriteString(e.Text)
			case core.FinalMessage:
				b.WriteString(e.Text)
				return Result{Text: b.String(), Usage: e.Usage, FinishReason: api.FinishReasonStop}, nil
			case core.ErrorEvent:
				return Result{}, e
			}
		}
	}
}

// Error types reported in OpenAI error envelopes.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeNotFound       = "not_found_error"
	ErrorTypeTool           = "tool_error"
	ErrorTypeInvocation     = "agent_invocation_error"
	ErrorTypeCancelled      = "request_cancelled"
	ErrorTypeTimeout        = "timeout"
	ErrorTypeAgent          = "agent_error"
	ErrorTypeServer         = "server_error"
)

// Classify maps an agent-side failure to an OpenAI error body.
func Classify(err error) api.ErrorBody {
	body := api.ErrorBody{Message: "unknown error", Type: ErrorTypeAgent}
	if err == nil {
		return body
	}
	body.Message = err.Error()

	var (
		toolErr *tool.ToolError
		invErr  *core.InvocationError
	)
	switch {
	case errors.Is(err, context.Canceled):
		body.Type = ErrorTypeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		body.Type = ErrorTypeTimeout
	case errors.As(err, &toolErr):
		body.Type = ErrorTypeTool
		body.Code = toolErr.Code
	case errors.As(err, &invErr):
		body.Type = ErrorTypeInvocation
	}
	return body
}
