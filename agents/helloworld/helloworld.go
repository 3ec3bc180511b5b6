// Package helloworld registers the "hello-world" agent. It streams a fixed
// greeting and needs no model backend, which makes it useful for checking a
// client setup.
package helloworld

import (
	"time"

	"github.com/hupe1980/agentgate/agent"
	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/registry"
)

// Name is the model name the agent is served under.
const Name = "hello-world"

// Tokens is the streamed greeting.
var Tokens = []string{"Hello", ", ", "world", "!"}

// TokenDelay paces the greeting so streaming is visible in clients.
var TokenDelay = 50 * time.Millisecond

func init() {
	registry.MustRegister(Name, core.ConstructorFunc(New))
}

// New creates the agent. The conversation is ignored.
func New(string, *core.Conversation) (core.Agent, error) {
	return agent.NewScriptedAgent(Name, Tokens, func(o *agent.ScriptedAgentOptions) {
		o.Delay = TokenDelay
	}), nil
}
