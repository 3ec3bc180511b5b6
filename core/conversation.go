package core

import (
	"fmt"
)

// Conversation roles accepted from the wire.
const (
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one role/content pair of the incoming chat history.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls are the function calls an assistant message requested.
	ToolCalls []FunctionCall `json:"tool_calls,omitempty"`
}

// GenerationOptions carries per-request sampling hints supplied by the client.
// Nil fields mean "use the backend default".
type GenerationOptions struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int64
	Stop        []string
	User        string
}

// Conversation is the prior message history of a single request. It is
// built fresh for every request and never persisted.
type Conversation struct {
	contents []Content
	options  GenerationOptions
}

// NewConversation creates a conversation from already normalized contents.
func NewConversation(contents ...Content) *Conversation {
	return &Conversation{contents: append([]Content(nil), contents...)}
}

// BuildConversation converts the wire history into a Conversation. When the
// last message has role "user" it is removed from the history and returned as
// the latest user message; otherwise the latest user message is empty.
//
// The returned error wraps ErrMalformedHistory when the history is empty or
// contains a role that is not recognised.
func BuildConversation(msgs []Message) (*Conversation, string, error) {
	if len(msgs) == 0 {
		return nil, "", fmt.Errorf("%w: messages must not be empty", ErrMalformedHistory)
	}

	history := msgs
	latest := ""
	if last := msgs[len(msgs)-1]; last.Role == RoleUser {
		latest = last.Content
		history = msgs[:len(msgs)-1]
	}

	contents := make([]Content, 0, len(history))
	for i, m := range history {
		c, err := messageToContent(m)
		if err != nil {
			return nil, "", fmt.Errorf("%w: message %d: %v", ErrMalformedHistory, i, err)
		}
		contents = append(contents, c)
	}

	return &Conversation{contents: contents}, latest, nil
}

func messageToContent(m Message) (Content, error) {
	switch m.Role {
	case RoleSystem, RoleDeveloper:
		return NewTextContent(RoleSystem, m.Content), nil
	case RoleUser:
		return NewTextContent(m.Role, m.Content), nil
	case RoleAssistant:
		c := NewTextContent(m.Role, m.Content)
		for _, fc := range m.ToolCalls {
			c.Parts = append(c.Parts, FunctionCallPart{FunctionCall: fc})
		}
		return c, nil
	case RoleTool:
		return Content{Role: RoleTool, Parts: []Part{FunctionResponsePart{FunctionResponse: FunctionResponse{
			ID:       m.ToolCallID,
			Name:     m.Name,
			Response: m.Content,
		}}}}, nil
	case "":
		return Content{}, fmt.Errorf("missing role")
	default:
		return Content{}, fmt.Errorf("unsupported role %q", m.Role)
	}
}

// Len returns the number of messages in the conversation.
func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	return len(c.contents)
}

// Contents returns a copy of the ordered contents.
func (c *Conversation) Contents() []Content {
	if c == nil {
		return nil
	}
	return append([]Content(nil), c.contents...)
}

// Messages flattens the conversation back into role/content pairs.
func (c *Conversation) Messages() []Message {
	if c == nil {
		return nil
	}
	msgs := make([]Message, 0, len(c.contents))
	for _, content := range c.contents {
		m := Message{Role: content.Role, Content: content.Text()}
		if content.Role == RoleAssistant {
			m.ToolCalls = content.FunctionCalls()
		}
		if content.Role == RoleTool {
			for _, p := range content.Parts {
				if fr, ok := p.(FunctionResponsePart); ok {
					m.ToolCallID = fr.FunctionResponse.ID
					m.Name = fr.FunctionResponse.Name
					m.Content = fmt.Sprint(fr.FunctionResponse.Response)
				}
			}
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// Append returns a new conversation with contents appended. The receiver is
// left untouched.
func (c *Conversation) Append(contents ...Content) *Conversation {
	next := &Conversation{}
	if c != nil {
		next.contents = append(next.contents, c.contents...)
		next.options = c.options
	}
	next.contents = append(next.contents, contents...)
	return next
}

// Options returns the generation hints attached to the request.
func (c *Conversation) Options() GenerationOptions {
	if c == nil {
		return GenerationOptions{}
	}
	return c.options
}

// WithOptions returns a copy of the conversation carrying opts.
func (c *Conversation) WithOptions(opts GenerationOptions) *Conversation {
	next := c.Append()
	next.options = opts
	return next
}
