package api

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/hupe1980/agentgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessage_Text(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"string", `"hello"`, "hello"},
		{"null", `null`, ""},
		{"parts", `[{"type":"text","text":"a"},{"type":"image_url","image_url":{"url":"x"}},{"type":"text","text":"b"}]`, "ab"},
		{"empty", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ChatMessage{Role: "user", Content: json.RawMessage(tt.content)}
			assert.Equal(t, tt.want, m.Text())
		})
	}
}

func TestChatCompletionRequest_Decode(t *testing.T) {
	body := `{
		"model": "password",
		"messages": [
			{"role": "system", "content": "be nice"},
			{"role": "user", "content": [{"type": "text", "text": "hi"}]}
		],
		"stream": true,
		"stream_options": {"include_usage": true},
		"temperature": 0.2,
		"max_tokens": 10,
		"max_completion_tokens": 20,
		"stop": "END",
		"unknown_field": 1
	}`

	var req ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	assert.Equal(t, "password", req.Model)
	assert.True(t, req.Stream)
	assert.True(t, req.IncludeUsage())

	msgs := req.CoreMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, core.Message{Role: "system", Content: "be nice"}, msgs[0])
	assert.Equal(t, "hi", msgs[1].Content)

	opts := req.GenerationOptions()
	require.NotNil(t, opts.Temperature)
	assert.InDelta(t, 0.2, *opts.Temperature, 1e-9)
	require.NotNil(t, opts.MaxTokens)
	assert.Equal(t, int64(20), *opts.MaxTokens)
	assert.Equal(t, []string{"END"}, opts.Stop)
}

func TestChatCompletionRequest_DecodeToolCalls(t *testing.T) {
	body := `{
		"model": "password",
		"messages": [
			{"role": "user", "content": "secret?"},
			{"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "get_secret", "arguments": "{\"password\":\"bapple\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_1", "content": "stawberry"},
			{"role": "user", "content": "thanks"}
		]
	}`

	var req ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	msgs := req.CoreMessages()
	require.Len(t, msgs, 4)
	assert.Empty(t, msgs[1].Content)
	assert.Equal(t, []core.FunctionCall{{ID: "call_1", Name: "get_secret", Arguments: `{"password":"bapple"}`}}, msgs[1].ToolCalls)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Equal(t, "stawberry", msgs[2].Content)
	assert.Nil(t, msgs[3].ToolCalls)
}

func TestStop_Array(t *testing.T) {
	var req ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"stop":["a","b"]}`), &req))
	assert.Equal(t, Stop{"a", "b"}, req.Stop)
}

func TestNewChatCompletion_Shape(t *testing.T) {
	resp := NewChatCompletion("chatcmpl-1", 42, "hello-world", "Hello", &core.Usage{PromptTokens: 2, CompletionTokens: 3})

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 42,
		"model": "hello-world",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "Hello", "refusal": null},
			"logprobs": null,
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 2, "completion_tokens": 3, "total_tokens": 5},
		"system_fingerprint": "fp_agentgate"
	}`, string(data))
}

func TestNewModelList(t *testing.T) {
	list := NewModelList([]string{"a", "b"}, 1)
	assert.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 2)
	assert.Equal(t, ModelEntry{ID: "b", Object: "model", Created: 1, OwnedBy: "agent"}, list.Data[1])
}

func TestNewCompletionID(t *testing.T) {
	id := NewCompletionID()
	assert.True(t, strings.HasPrefix(id, "chatcmpl-"))
	assert.Len(t, id, len("chatcmpl-")+32)
}
