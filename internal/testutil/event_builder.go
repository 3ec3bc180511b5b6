package testutil

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentgate/core"
)

// EventBuilder provides a fluent helper for constructing event sequences in tests.
// Example:
//
//	evs := NewEventBuilder().Tokens("Hel", "lo").ToolCall("get_secret", `{}`).Final("!").Build()
//
// Chain only the parts you need.
type EventBuilder struct {
	events []core.Event
	calls  int
}

// NewEventBuilder creates an empty builder.
func NewEventBuilder() *EventBuilder { return &EventBuilder{} }

// Tokens appends one TokenDelta per text (chainable).
func (b *EventBuilder) Tokens(texts ...string) *EventBuilder {
	for _, t := range texts {
		b.events = append(b.events, core.TokenDelta{Text: t})
	}
	return b
}

// ToolCall appends a tool call with a generated id (chainable).
func (b *EventBuilder) ToolCall(name, args string) *EventBuilder {
	b.calls++
	b.events = append(b.events, core.ToolCallEvent{ID: callID(b.calls), Name: name, Arguments: args})
	return b
}

// ToolResult appends the result of the most recent tool call (chainable).
func (b *EventBuilder) ToolResult(name, result string, isError bool) *EventBuilder {
	b.events = append(b.events, core.ToolResultEvent{ID: callID(b.calls), Name: name, Result: result, IsError: isError})
	return b
}

// Final appends a final message without usage (chainable).
func (b *EventBuilder) Final(text string) *EventBuilder {
	b.events = append(b.events, core.FinalMessage{Text: text})
	return b
}

// FinalWithUsage appends a final message with usage (chainable).
func (b *EventBuilder) FinalWithUsage(text string, prompt, completion int) *EventBuilder {
	b.events = append(b.events, core.FinalMessage{
		Text:  text,
		Usage: &core.Usage{PromptTokens: prompt, CompletionTokens: completion},
	})
	return b
}

// Error appends an error event (chainable).
func (b *EventBuilder) Error(msg string) *EventBuilder {
	return b.ErrorErr(errors.New(msg))
}

// ErrorErr appends an error event wrapping err (chainable).
func (b *EventBuilder) ErrorErr(err error) *EventBuilder {
	b.events = append(b.events, core.ErrorEvent{Err: err})
	return b
}

// Build returns a copy of the sequence.
func (b *EventBuilder) Build() []core.Event {
	return append([]core.Event(nil), b.events...)
}

// Channel returns the sequence on a closed, buffered channel.
func (b *EventBuilder) Channel() <-chan core.Event {
	return ChannelOf(b.events...)
}

// ChannelOf returns events on a closed, buffered channel.
func ChannelOf(events ...core.Event) <-chan core.Event {
	ch := make(chan core.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

// Collect drains ch.
func Collect(ch <-chan core.Event) []core.Event {
	var out []core.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func callID(n int) string {
	return fmt.Sprintf("call_%d", n)
}
