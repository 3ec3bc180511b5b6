package agent

import (
	"context"
	"time"

	"github.com/hupe1980/agentgate/core"
)

// ScriptedAgent emits a fixed sequence of token deltas followed by a final
// message. It needs no model backend and is used for demos and tests.
type ScriptedAgent struct {
	BaseAgent
	tokens []string
	final  string
	usage  *core.Usage
	delay  time.Duration
}

// ScriptedAgentOptions configures a ScriptedAgent.
type ScriptedAgentOptions struct {
	// Final is the text carried by the final message.
	Final string
	// Delay is inserted before every token.
	Delay time.Duration
	Usage *core.Usage
}

// NewScriptedAgent creates an agent that streams tokens in order.
func NewScriptedAgent(name string, tokens []string, optFns ...func(o *ScriptedAgentOptions)) *ScriptedAgent {
	var opts ScriptedAgentOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ScriptedAgent{
		BaseAgent: NewBaseAgent(name),
		tokens:    append([]string(nil), tokens...),
		final:     opts.Final,
		usage:     opts.Usage,
		delay:     opts.Delay,
	}
}

// Run implements core.Agent.
func (s *ScriptedAgent) Run(ctx context.Context) (<-chan core.Event, <-chan error) {
	if err := s.start(); err != nil {
		return failed(err)
	}

	events := make(chan core.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(events)

		emit := func(ev core.Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				errs <- ctx.Err()
				return false
			}
		}

		for _, tok := range s.tokens {
			if s.delay > 0 {
				select {
				case <-time.After(s.delay):
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if !emit(core.TokenDelta{Text: tok}) {
				return
			}
		}

		emit(core.FinalMessage{Text: s.final, Usage: s.usage})
	}()

	return events, errs
}
