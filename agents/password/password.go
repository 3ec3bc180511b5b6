// Package password registers the "password" demo agent. The agent does not
// know the secret word but can retrieve it with the get_secret tool when the
// user supplies the right password.
package password

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/hupe1980/agentgate/agent"
	"github.com/hupe1980/agentgate/backend"
	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/model"
	"github.com/hupe1980/agentgate/registry"
	"github.com/hupe1980/agentgate/tool"
)

// Name is the model name the agent is served under.
const Name = "password"

const (
	password = "bapple"
	secret   = "The secret word is 'stawberry'"

	// taskPrefix marks housekeeping requests from chat front ends, such as
	// title generation, which are answered without tools.
	taskPrefix = "### Task:"
)

// ErrIncorrectPassword is returned by get_secret for a wrong password.
var ErrIncorrectPassword = errors.New("Incorrect password")

func init() {
	registry.MustRegister(Name, core.ConstructorFunc(New))
}

// New creates the agent on the default backend model.
func New(userMessage string, conv *core.Conversation) (core.Agent, error) {
	llm, err := backend.Default()
	if err != nil {
		return nil, err
	}
	return NewWithModel(llm, userMessage, conv), nil
}

// NewWithModel creates the agent on llm.
func NewWithModel(llm model.Model, userMessage string, conv *core.Conversation) *agent.ModelAgent {
	if strings.HasPrefix(strings.TrimSpace(userMessage), taskPrefix) {
		return agent.NewModelAgent(Name, llm, userMessage, conv)
	}
	return agent.NewModelAgent(Name, llm, userMessage, conv, func(o *agent.ModelAgentOptions) {
		o.Tools = []tool.Tool{SecretTool()}
	})
}

type secretRequest struct {
	Password string `json:"password" description:"The password given by the user"`
}

// SecretTool returns the get_secret tool.
func SecretTool() tool.Tool {
	return tool.NewTypedTool(
		"get_secret",
		"If the password is correct, provide the secret word.",
		func(_ context.Context, req secretRequest) (any, error) {
			return getSecret(req.Password)
		},
	)
}

func getSecret(p string) (string, error) {
	if removePunctuation(p) == password {
		return secret, nil
	}
	return "", ErrIncorrectPassword
}

// removePunctuation keeps word characters and whitespace.
func removePunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			return r
		}
		return -1
	}, s)
}
