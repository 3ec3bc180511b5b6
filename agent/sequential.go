package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentgate/core"
)

// Step is one stage of a SequentialAgent.
type Step struct {
	Name        string
	Constructor core.Constructor
}

// SequentialAgent chains child agents. Every step sees the original history;
// the first step gets the latest user message and each later step gets the
// answer of the step before it as its user message.
//
// Only the last step's tokens are streamed to the client. Tool events of all
// steps are forwarded, and the final message carries the usage summed over
// all steps.
type SequentialAgent struct {
	BaseAgent
	steps       []Step
	userMessage string
	conv        *core.Conversation
}

// NewSequentialAgent creates a new sequential execution coordinator.
func NewSequentialAgent(name, userMessage string, conv *core.Conversation, steps ...Step) *SequentialAgent {
	return &SequentialAgent{
		BaseAgent:   NewBaseAgent(name),
		steps:       steps,
		userMessage: userMessage,
		conv:        conv,
	}
}

// Run implements core.Agent. Errors stop further processing immediately.
func (s *SequentialAgent) Run(ctx context.Context) (<-chan core.Event, <-chan error) {
	if err := s.start(); err != nil {
		return failed(err)
	}
	if len(s.steps) == 0 {
		return failed(fmt.Errorf("sequential agent %s has no steps", s.Name()))
	}

	events := make(chan core.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(events)

		emit := func(ev core.Event) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var total core.Usage
		input := s.userMessage
		for i, step := range s.steps {
			output, err := s.runStep(ctx, step, input, i == len(s.steps)-1, &total, emit)
			if err != nil {
				errs <- fmt.Errorf("sequential execution failed at step %s: %w", step.Name, err)
				return
			}
			input = output
		}
	}()

	return events, errs
}

// runStep runs one child agent and returns its answer.
func (s *SequentialAgent) runStep(
	ctx context.Context,
	step Step,
	input string,
	last bool,
	total *core.Usage,
	emit func(core.Event) error,
) (string, error) {
	child, err := step.Constructor.New(input, s.conv)
	if err != nil {
		return "", &core.InvocationError{Agent: step.Name, Err: err}
	}

	childEvents, childErrs := child.Run(ctx)

	var (
		answer   strings.Builder
		final    bool
		emitErr  error
		agentErr error
	)
	for ev := range childEvents {
		if emitErr != nil || agentErr != nil {
			continue
		}
		switch e := ev.(type) {
		case core.TokenDelta:
			answer.WriteString(e.Text)
			if last {
				emitErr = emit(e)
			}
		case core.ToolCallEvent, core.ToolResultEvent:
			emitErr = emit(e)
		case core.FinalMessage:
			answer.WriteString(e.Text)
			total.Add(e.Usage)
			final = true
			if last {
				emitErr = emit(core.FinalMessage{Text: e.Text, Usage: usageOrNil(*total)})
			}
		case core.ErrorEvent:
			agentErr = e
		}
	}

	if err := <-childErrs; err != nil {
		return "", err
	}
	if agentErr != nil {
		return "", agentErr
	}
	if emitErr != nil {
		return "", emitErr
	}
	if last && !final {
		if err := emit(core.FinalMessage{Usage: usageOrNil(*total)}); err != nil {
			return "", err
		}
	}
	if !last && answer.Len() == 0 {
		return "", errors.New("step produced no answer")
	}

	return answer.String(), nil
}

func usageOrNil(u core.Usage) *core.Usage {
	if u.TotalTokens() == 0 {
		return nil
	}
	return &u
}
