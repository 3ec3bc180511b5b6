// Package dispatch turns one chat request into one running agent invocation.
//
// The dispatcher builds the conversation, resolves the agent, invokes its
// constructor, runs it and forwards its events in order on a single channel.
// Every failure after the request has been accepted, including panics and
// constructor errors, is delivered as one terminal core.ErrorEvent. The
// events channel is always closed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/logging"
	"github.com/hupe1980/agentgate/registry"
)

// Resolver maps a requested model name to an agent constructor.
type Resolver interface {
	Resolve(requested string) (registry.Resolution, error)
}

// Request is the transport-neutral input of a dispatch.
type Request struct {
	Model    string
	Messages []core.Message
	Options  core.GenerationOptions
}

// Invocation is one running agent.
type Invocation struct {
	ID       string
	Created  time.Time
	Model    string // the requested model name, echoed in responses
	Agent    string // the resolved agent name
	Fallback bool   // whether the default agent was used
	Events   <-chan core.Event

	cancel context.CancelFunc
}

// Cancel stops the invocation. It is safe to call multiple times.
func (inv *Invocation) Cancel() {
	if inv.cancel != nil {
		inv.cancel()
	}
}

// Options configures a Dispatcher.
type Options struct {
	Logger logging.Logger
	// BufferSize is the capacity of the forwarded event channel.
	BufferSize int
}

// Dispatcher runs agents for incoming requests.
type Dispatcher struct {
	resolver Resolver
	logger   logging.Logger
	buffer   int
}

// New creates a Dispatcher.
func New(resolver Resolver, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		Logger:     logging.NoOpLogger{},
		BufferSize: 16,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Dispatcher{
		resolver: resolver,
		logger:   opts.Logger,
		buffer:   opts.BufferSize,
	}
}

// Dispatch validates the request, resolves the agent and starts it.
//
// An error is returned only when the request cannot be dispatched at all:
// the history wraps core.ErrMalformedHistory or no agent (and no default)
// matches. Everything that goes wrong afterwards arrives as an ErrorEvent on
// Invocation.Events.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Invocation, error) {
	conv, userMessage, err := core.BuildConversation(req.Messages)
	if err != nil {
		return nil, err
	}
	conv = conv.WithOptions(req.Options)

	res, err := d.resolver.Resolve(req.Model)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", req.Model, err)
	}

	id := core.NewID()
	logger := logging.With(d.logger, "invocation", id, "agent", res.Name)
	if res.Fallback {
		logger.Warn("dispatch.agent.fallback", "requested", req.Model)
	}

	runCtx, cancel := context.WithCancel(ctx)
	events := make(chan core.Event, d.buffer)

	inv := &Invocation{
		ID:       id,
		Created:  time.Now(),
		Model:    req.Model,
		Agent:    res.Name,
		Fallback: res.Fallback,
		Events:   events,
		cancel:   cancel,
	}

	logger.Debug("dispatch.start", "history", conv.Len(), "has_user_message", userMessage != "")

	go func() {
		defer close(events)
		defer cancel()

		start := time.Now()
		err := d.run(runCtx, res, userMessage, conv, events)
		switch {
		case err == nil:
			logger.Info("dispatch.completed", "duration_ms", time.Since(start).Milliseconds())
		case errors.Is(err, context.Canceled):
			logger.Info("dispatch.cancelled", "duration_ms", time.Since(start).Milliseconds())
		default:
			logger.Error("dispatch.failed", "duration_ms", time.Since(start).Milliseconds(), "error", err.Error())
		}
	}()

	return inv, nil
}

// run invokes the agent and forwards its events. It returns the error that
// terminated the sequence, if any, after it has been sent as an ErrorEvent.
func (d *Dispatcher) run(
	ctx context.Context,
	res registry.Resolution,
	userMessage string,
	conv *core.Conversation,
	out chan<- core.Event,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.InvocationError{Agent: res.Name, Err: &core.PanicError{Value: r, Stack: debug.Stack()}}
			sendTerminal(ctx, out, err)
		}
	}()

	agent, err := res.Constructor.New(userMessage, conv)
	if err == nil && agent == nil {
		err = errors.New("constructor returned no agent")
	}
	if err != nil {
		err = &core.InvocationError{Agent: res.Name, Err: err}
		sendTerminal(ctx, out, err)
		return err
	}

	events, errs := agent.Run(ctx)
	return forward(ctx, events, errs, out)
}

// forward copies events to out until the agent finishes, emits an
// ErrorEvent, or ctx is cancelled.
func forward(ctx context.Context, events <-chan core.Event, errs <-chan error, out chan<- core.Event) error {
	final := false
	for events != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if final {
				// Nothing may follow a final message.
				continue
			}
			_, final = ev.(core.FinalMessage)
			if !send(ctx, out, ev) {
				return ctx.Err()
			}
			if e, isErr := ev.(core.ErrorEvent); isErr {
				return e
			}
		}
	}

	var runErr error
	if errs != nil {
		select {
		case runErr = <-errs:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if runErr == nil || final {
		return nil
	}
	sendTerminal(ctx, out, runErr)
	return runErr
}

func sendTerminal(ctx context.Context, out chan<- core.Event, err error) {
	send(ctx, out, core.ErrorEvent{Err: err})
}

func send(ctx context.Context, out chan<- core.Event, ev core.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
