package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/logging"
	"github.com/hupe1980/agentgate/model"
)

// ErrEmptyResponse is returned when the model stream ends without a final turn.
var ErrEmptyResponse = errors.New("model returned no response")

// Options configures a Flow.
type Options struct {
	// MaxModelCalls bounds the number of model turns of one run (0 = unlimited).
	MaxModelCalls int
	// ToolTimeout bounds a single tool execution (0 = no timeout).
	ToolTimeout time.Duration
	// MaxHistoryMessages trims the conversation sent to the model (0 = keep all).
	MaxHistoryMessages int
	// Executor runs tool calls; defaults to a parallel executor.
	Executor FunctionExecutor
	Logger   logging.Logger
}

// Flow is a single-agent request -> model -> (optional tool loop) cycle with
// pluggable request processors.
type Flow struct {
	agent      Agent
	opts       Options
	processors []RequestProcessor
}

// New creates a flow with the default processors (instructions, contents,
// tools).
func New(agent Agent, optFns ...func(o *Options)) *Flow {
	opts := Options{
		MaxModelCalls: 10,
		ToolTimeout:   30 * time.Second,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Executor == nil {
		opts.Executor = NewParallelFunctionExecutor(FunctionExecutorConfig{
			Timeout: opts.ToolTimeout,
			Logger:  opts.Logger,
		})
	}

	return &Flow{
		agent: agent,
		opts:  opts,
		processors: []RequestProcessor{
			NewInstructionsProcessor(),
			NewContentsProcessor(opts.MaxHistoryMessages),
			NewToolsProcessor(),
		},
	}
}

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (f *Flow) AddRequestProcessor(processor RequestProcessor) {
	f.processors = append(f.processors, processor)
}

// Run launches the flow for contents and returns its events. The event
// channel is closed when the run ends; a failure is reported as the single
// value of the error channel.
func (f *Flow) Run(ctx context.Context, contents []core.Content, opts core.GenerationOptions) (<-chan core.Event, <-chan error) {
	events := make(chan core.Event, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(events)

		state := &State{
			Agent:    f.agent,
			Contents: append([]core.Content(nil), contents...),
			Options:  opts,
		}

		emit := func(ev core.Event) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := f.run(ctx, state, emit); err != nil {
			errs <- err
		}
	}()

	return events, errs
}

func (f *Flow) run(ctx context.Context, state *State, emit func(core.Event) error) error {
	limiter := core.NewCallLimiter(f.opts.MaxModelCalls)

	var (
		usage    core.Usage
		hasUsage bool
	)

	for {
		if err := limiter.Increment(); err != nil {
			return err
		}

		turn, streamed, err := f.runOnce(ctx, state, emit)
		if err != nil {
			return err
		}
		if turn.Usage != nil {
			usage.Add(turn.Usage)
			hasUsage = true
		}

		calls := turn.Content.FunctionCalls()
		if len(calls) == 0 {
			final := core.FinalMessage{Text: remainder(turn.Content.Text(), streamed)}
			if hasUsage {
				final.Usage = &usage
			}
			return emit(final)
		}

		// Text the model produced alongside tool calls is part of the answer.
		if text := remainder(turn.Content.Text(), streamed); text != "" {
			if err := emit(core.TokenDelta{Text: text}); err != nil {
				return err
			}
		}

		state.Contents = append(state.Contents, turn.Content)

		for _, c := range calls {
			if err := emit(core.ToolCallEvent{ID: c.ID, Name: c.Name, Arguments: c.Arguments}); err != nil {
				return err
			}
		}

		results := f.opts.Executor.Execute(ctx, state.Agent.Tools(), calls)

		parts := make([]core.Part, 0, len(results))
		for _, r := range results {
			if r.Fatal() {
				return fmt.Errorf("agent %s: %w", f.agent.Name(), r.Err)
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := emit(core.ToolResultEvent{
				ID:      r.Call.ID,
				Name:    r.Call.Name,
				Result:  model.ResponseText(r.Response),
				IsError: r.Err != nil,
			}); err != nil {
				return err
			}
			parts = append(parts, core.FunctionResponsePart{FunctionResponse: r.Response})
		}

		state.Contents = append(state.Contents, core.Content{Role: core.RoleTool, Parts: parts})
	}
}

// runOnce performs one model turn. It emits a TokenDelta per partial response
// and returns the final response together with the text already streamed.
func (f *Flow) runOnce(ctx context.Context, state *State, emit func(core.Event) error) (model.Response, string, error) {
	req := model.Request{
		Stream:  f.agent.Streaming(),
		Options: state.Options,
	}
	for _, processor := range f.processors {
		if err := processor.ProcessRequest(ctx, &req, state); err != nil {
			return model.Response{}, "", fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
		}
	}

	llm := f.agent.Model()
	name := llm.Info().Name

	start := time.Now()
	respCh, errCh := llm.Generate(ctx, req)

	var (
		final    *model.Response
		streamed strings.Builder
	)
	for resp := range respCh {
		if resp.Partial {
			text := resp.Content.Text()
			if text == "" {
				continue
			}
			streamed.WriteString(text)
			if err := emit(core.TokenDelta{Text: text}); err != nil {
				drain(respCh)
				return model.Response{}, "", err
			}
			continue
		}
		r := resp
		final = &r
	}

	if err := <-errCh; err != nil {
		logging.LogModelCall(f.opts.Logger, name, 0, time.Since(start), err)
		return model.Response{}, "", fmt.Errorf("model %s: %w", name, err)
	}
	if final == nil {
		if err := ctx.Err(); err != nil {
			return model.Response{}, "", err
		}
		return model.Response{}, "", ErrEmptyResponse
	}

	tokens := 0
	if final.Usage != nil {
		tokens = final.Usage.TotalTokens()
	}
	logging.LogModelCall(f.opts.Logger, name, tokens, time.Since(start), nil)

	return *final, streamed.String(), nil
}

// remainder returns the part of text that was not yet streamed.
func remainder(text, streamed string) string {
	if streamed == "" {
		return text
	}
	if strings.HasPrefix(text, streamed) {
		return text[len(streamed):]
	}
	return ""
}

func drain(ch <-chan model.Response) {
	for range ch {
	}
}
