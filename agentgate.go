// Package agentgate serves pluggable conversational agents through an
// OpenAI-compatible chat completion API.
//
// Most applications interact with this package by:
//  1. Registering agents, usually by importing plugin packages whose init
//     functions call registry.MustRegister
//  2. Creating a Gateway via New, which seals the registry
//  3. Serving Handler, or calling Invoke directly
//
// Any model name a client sends is resolved to a registered agent. Unknown
// names fall back to the default agent.
package agentgate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/agentgate/agents/declarative"
	"github.com/hupe1980/agentgate/dispatch"
	"github.com/hupe1980/agentgate/logging"
	"github.com/hupe1980/agentgate/registry"
	"github.com/hupe1980/agentgate/server"
	"github.com/hupe1980/agentgate/stream"
)

// Options configures the Gateway.
type Options struct {
	// Registry holds the agents. Defaults to registry.Global().
	Registry *registry.Registry

	// DefaultAgent serves requests for unknown model names. Empty disables
	// the fallback.
	DefaultAgent string

	// AgentDir holds declarative agent definitions registered at startup.
	AgentDir string

	// ToolEvents selects how tool events appear in streamed responses.
	ToolEvents stream.ToolEventMode

	// EventBufferSize is the capacity of each invocation's event channel.
	EventBufferSize int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Gateway wires the registry, the dispatcher and the HTTP server.
type Gateway struct {
	opts       Options
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	server     *server.Server
}

// New creates a Gateway. The registry is sealed: agents registered afterwards
// are rejected.
func New(optFns ...func(o *Options)) (*Gateway, error) {
	opts := Options{
		ToolEvents:      stream.ToolEventsSuppress,
		EventBufferSize: 16,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = registry.Global()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	reg := opts.Registry
	if opts.AgentDir != "" {
		names, err := declarative.RegisterDir(reg, opts.AgentDir)
		if err != nil {
			return nil, fmt.Errorf("agent dir: %w", err)
		}
		opts.Logger.Info("agents.declarative.loaded", "dir", opts.AgentDir, "agents", names)
	}
	if opts.DefaultAgent != "" {
		if err := reg.SetDefault(opts.DefaultAgent); err != nil {
			return nil, err
		}
	}
	reg.Seal()

	d := dispatch.New(reg, func(o *dispatch.Options) {
		o.Logger = opts.Logger
		o.BufferSize = opts.EventBufferSize
	})
	srv := server.New(d, reg, func(o *server.Options) {
		o.Logger = opts.Logger
		o.ToolEvents = opts.ToolEvents
	})

	opts.Logger.Info("agents.registered", "agents", reg.Names(), "default", opts.DefaultAgent)

	return &Gateway{opts: opts, registry: reg, dispatcher: d, server: srv}, nil
}

// Registry returns the sealed agent registry.
func (g *Gateway) Registry() *registry.Registry { return g.registry }

// Handler returns the HTTP handler serving the API.
func (g *Gateway) Handler() http.Handler { return g.server.Handler() }

// ListenAndServe serves on addr until ctx is cancelled.
func (g *Gateway) ListenAndServe(ctx context.Context, addr string, grace time.Duration) error {
	return g.server.ListenAndServe(ctx, addr, grace)
}

// Dispatch starts an invocation and returns its event stream.
func (g *Gateway) Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Invocation, error) {
	return g.dispatcher.Dispatch(ctx, req)
}

// Invoke is a synchronous helper that runs an agent to completion and
// returns the aggregated answer.
func (g *Gateway) Invoke(ctx context.Context, req dispatch.Request) (stream.Result, error) {
	inv, err := g.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return stream.Result{}, err
	}
	defer inv.Cancel()

	return stream.Aggregate(ctx, inv.Events)
}
