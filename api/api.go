// Package api defines the OpenAI-compatible wire types served by agentgate:
// chat completion requests, aggregated responses, streaming chunks, error
// envelopes and the model list.
package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentgate/core"
	"github.com/tidwall/gjson"
)

// Object names used in responses.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	ObjectList                = "list"
	ObjectModel               = "model"

	FinishReasonStop = "stop"

	// SystemFingerprint is reported in every completion.
	SystemFingerprint = "fp_agentgate"
)

// ChatCompletionRequest is the body of POST /v1/chat/completions. Unknown
// fields are ignored.
type ChatCompletionRequest struct {
	Model               string         `json:"model"`
	Messages            []ChatMessage  `json:"messages"`
	Stream              bool           `json:"stream,omitempty"`
	StreamOptions       *StreamOptions `json:"stream_options,omitempty"`
	Temperature         *float64       `json:"temperature,omitempty"`
	TopP                *float64       `json:"top_p,omitempty"`
	MaxTokens           *int64         `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int64         `json:"max_completion_tokens,omitempty"`
	Stop                Stop           `json:"stop,omitempty"`
	User                string         `json:"user,omitempty"`
}

// StreamOptions controls optional streaming behaviour.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// IncludeUsage reports whether the client asked for a usage chunk.
func (r *ChatCompletionRequest) IncludeUsage() bool {
	return r.StreamOptions != nil && r.StreamOptions.IncludeUsage
}

// GenerationOptions extracts the sampling hints of the request.
// max_completion_tokens takes precedence over the legacy max_tokens.
func (r *ChatCompletionRequest) GenerationOptions() core.GenerationOptions {
	opts := core.GenerationOptions{
		Temperature: r.Temperature,
		TopP:        r.TopP,
		MaxTokens:   r.MaxTokens,
		Stop:        []string(r.Stop),
		User:        r.User,
	}
	if r.MaxCompletionTokens != nil {
		opts.MaxTokens = r.MaxCompletionTokens
	}
	return opts
}

// CoreMessages converts the wire messages into core messages.
func (r *ChatCompletionRequest) CoreMessages() []core.Message {
	out := make([]core.Message, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = core.Message{
			Role:       m.Role,
			Content:    m.Text(),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			out[i].ToolCalls = append(out[i].ToolCalls, core.FunctionCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return out
}

// Stop accepts either a single string or an array of strings.
type Stop []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stop) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	switch {
	case res.Type == gjson.Null:
		*s = nil
	case res.IsArray():
		var out []string
		for _, v := range res.Array() {
			out = append(out, v.String())
		}
		*s = out
	default:
		*s = Stop{res.String()}
	}
	return nil
}

// ChatMessage is one entry of the request history. Content is either a
// string or an array of content parts.
type ChatMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
}

// ToolCall is a function call requested by an assistant message in the
// replayed history.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction names the called function and its JSON arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewChatMessage builds a message with plain string content.
func NewChatMessage(role, content string) ChatMessage {
	raw, _ := json.Marshal(content)
	return ChatMessage{Role: role, Content: raw}
}

// Text returns the textual content of the message. For multi-part content the
// text parts are concatenated; image and audio parts are ignored.
func (m ChatMessage) Text() string {
	if len(m.Content) == 0 {
		return ""
	}

	res := gjson.ParseBytes(m.Content)
	if !res.IsArray() {
		if res.Type == gjson.Null {
			return ""
		}
		return res.String()
	}

	var b strings.Builder
	for _, part := range res.Array() {
		if t := part.Get("type").String(); t != "" && t != "text" {
			continue
		}
		b.WriteString(part.Get("text").String())
	}
	return b.String()
}

// Usage reports token accounting in the OpenAI format.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage converts core usage; a nil input yields zero usage.
func NewUsage(u *core.Usage) Usage {
	if u == nil {
		return Usage{}
	}
	return Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens(),
	}
}

// ResponseMessage is the assistant message of a non-streaming response.
type ResponseMessage struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Refusal *string `json:"refusal"`
}

// Choice is one alternative of a non-streaming response.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	Logprobs     any             `json:"logprobs"`
	FinishReason string          `json:"finish_reason"`
}

// ChatCompletion is the aggregated (non-streaming) response.
type ChatCompletion struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             Usage    `json:"usage"`
	SystemFingerprint string   `json:"system_fingerprint"`
}

// NewChatCompletion builds a single-choice completion.
func NewChatCompletion(id string, created int64, model, content string, usage *core.Usage) ChatCompletion {
	return ChatCompletion{
		ID:      id,
		Object:  ObjectChatCompletion,
		Created: created,
		Model:   model,
		Choices: []Choice{{
			Index:        0,
			Message:      ResponseMessage{Role: core.RoleAssistant, Content: content},
			FinishReason: FinishReasonStop,
		}},
		Usage:             NewUsage(usage),
		SystemFingerprint: SystemFingerprint,
	}
}

// Delta is the incremental message of a streaming chunk.
type Delta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// ChunkChoice is one alternative of a streaming chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	Logprobs     any     `json:"logprobs"`
	FinishReason *string `json:"finish_reason"`
}

// ChatCompletionChunk is one SSE frame of a streaming response.
type ChatCompletionChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"`
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	SystemFingerprint string        `json:"system_fingerprint"`
	Choices           []ChunkChoice `json:"choices"`
	Usage             *Usage        `json:"usage,omitempty"`
}

// ErrorBody describes an error in the OpenAI envelope format.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   any    `json:"param"`
	Code    string `json:"code,omitempty"`
}

// ErrorResponse is the OpenAI error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ModelEntry is one item of the model list.
type ModelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// NewModelList lists every agent name as a model.
func NewModelList(names []string, created int64) ModelList {
	list := ModelList{Object: ObjectList, Data: make([]ModelEntry, 0, len(names))}
	for _, n := range names {
		list.Data = append(list.Data, ModelEntry{ID: n, Object: ObjectModel, Created: created, OwnedBy: "agent"})
	}
	return list
}

// NewCompletionID returns an id in the "chatcmpl-<hex>" format.
func NewCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Now returns the current unix timestamp used for the created field.
func Now() int64 { return time.Now().Unix() }
