package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/flow"
	"github.com/hupe1980/agentgate/logging"
	"github.com/hupe1980/agentgate/model"
	"github.com/hupe1980/agentgate/tool"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction           Instruction
	EnableStreaming       bool
	EnableFunctionCalling bool
	ToolTimeout           time.Duration
	MaxHistoryMessages    int
	MaxModelCalls         int
	Tools                 []tool.Tool
	Vars                  Vars // extra template variables
	Logger                logging.Logger
}

// ModelAgent answers one request with a language model, optionally calling
// tools in between.
//
// The conversation history and latest user message are fixed at construction
// time. Run converts model output into core events through a flow.Flow.
type ModelAgent struct {
	BaseAgent
	llm         model.Model
	conv        *core.Conversation
	userMessage string
	tools       tool.Set
	opts        ModelAgentOptions
}

// NewModelAgent creates a new model-based agent with sensible defaults:
// streaming and function calling enabled, a 15 second tool timeout and at
// most 10 model calls per run.
func NewModelAgent(name string, llm model.Model, userMessage string, conv *core.Conversation, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:           NewInstructionFromText(""),
		EnableStreaming:       true,
		EnableFunctionCalling: true,
		ToolTimeout:           15 * time.Second,
		MaxModelCalls:         10,
		Logger:                logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent:   NewBaseAgent(name),
		llm:         llm,
		conv:        conv,
		userMessage: userMessage,
		tools:       tool.Set{},
		opts:        opts,
	}
	a.RegisterTools(opts.Tools...)
	return a
}

// RegisterTool adds a tool to the agent's capability set.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	a.tools[t.Name()] = t
}

// RegisterTools adds multiple tools to the agent's capability set.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, exists := a.tools[name]
	return exists
}

// UserMessage returns the latest user message the agent was created with.
func (a *ModelAgent) UserMessage() string { return a.userMessage }

// Model implements flow.Agent.
func (a *ModelAgent) Model() model.Model { return a.llm }

// Tools implements flow.Agent. Tools are hidden from the model when function
// calling is disabled.
func (a *ModelAgent) Tools() tool.Set {
	if !a.opts.EnableFunctionCalling {
		return nil
	}
	return a.tools
}

// Streaming implements flow.Agent.
func (a *ModelAgent) Streaming() bool { return a.opts.EnableStreaming }

// Instructions implements flow.Agent.
func (a *ModelAgent) Instructions(ctx context.Context) (string, error) {
	vars := Vars{
		"agent":        a.Name(),
		"user_message": a.userMessage,
		"date":         time.Now().Format("2006-01-02"),
		"model":        a.llm.Info().Name,
	}
	for k, v := range a.opts.Vars {
		vars[k] = v
	}
	return a.opts.Instruction.Resolve(ctx, vars)
}

// Contents returns the conversation sent to the model: the history followed
// by the latest user message, if any.
func (a *ModelAgent) Contents() []core.Content {
	contents := a.conv.Contents()
	if a.userMessage != "" {
		contents = append(contents, core.NewTextContent(core.RoleUser, a.userMessage))
	}
	return contents
}

// Run implements core.Agent.
func (a *ModelAgent) Run(ctx context.Context) (<-chan core.Event, <-chan error) {
	if err := a.start(); err != nil {
		return failed(err)
	}
	if a.llm == nil {
		return failed(fmt.Errorf("agent %s: no model configured", a.Name()))
	}

	contents := a.Contents()
	if len(contents) == 0 {
		return failed(fmt.Errorf("agent %s: %w: nothing to respond to", a.Name(), core.ErrMalformedHistory))
	}

	logger := logging.With(a.opts.Logger, "agent", a.Name())
	logger.Debug("agent.run.start", "contents", len(contents), "tools", len(a.Tools()))

	fl := flow.New(a, func(o *flow.Options) {
		o.MaxModelCalls = a.opts.MaxModelCalls
		o.ToolTimeout = a.opts.ToolTimeout
		o.MaxHistoryMessages = a.opts.MaxHistoryMessages
		o.Logger = logger
	})

	return fl.Run(ctx, contents, a.conv.Options())
}
