package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/hupe1980/agentgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSchema(t *testing.T) {
	s := toSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"password": map[string]any{"type": "string", "description": "the password"},
			"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"mode":     map[string]any{"type": "string", "enum": []any{"a", "b"}},
		},
		"required": []string{"password"},
	})

	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"password"}, s.Required)
	require.Contains(t, s.Properties, "password")
	assert.Equal(t, genai.TypeString, s.Properties["password"].Type)
	assert.Equal(t, "the password", s.Properties["password"].Description)
	assert.Equal(t, genai.TypeArray, s.Properties["tags"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["tags"].Items.Type)
	assert.Equal(t, []string{"a", "b"}, s.Properties["mode"].Enum)

	assert.Nil(t, toSchema(nil))
}

func TestBuildHistory(t *testing.T) {
	contents := []core.Content{
		core.NewTextContent(core.RoleSystem, "be brief"),
		core.NewTextContent(core.RoleUser, "what is the secret?"),
		{Role: core.RoleAssistant, Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "get_secret", Arguments: `{"password":"x"}`}},
		}},
		{Role: core.RoleTool, Parts: []core.Part{
			core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Error: "Incorrect password"}},
		}},
		core.NewTextContent(core.RoleUser, "try again"),
	}

	history, system := buildHistory(contents)

	assert.Equal(t, "be brief", system)
	require.Len(t, history, 3)

	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, genai.Text("what is the secret?"), history[0].Parts[0])

	assert.Equal(t, "model", history[1].Role)
	call, ok := history[1].Parts[0].(genai.FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "get_secret", call.Name)
	assert.Equal(t, "x", call.Args["password"])

	// The tool result and the following user turn share the user role.
	assert.Equal(t, "user", history[2].Role)
	require.Len(t, history[2].Parts, 2)
	resp, ok := history[2].Parts[0].(genai.FunctionResponse)
	require.True(t, ok)
	assert.Equal(t, "get_secret", resp.Name)
	assert.Equal(t, "Incorrect password", resp.Response["error"])
	assert.Equal(t, genai.Text("try again"), history[2].Parts[1])
}

func TestAccumulator(t *testing.T) {
	acc := &accumulator{}

	deltas := acc.add(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text("Hel")}}}},
	})
	assert.Equal(t, []string{"Hel"}, deltas)

	deltas = acc.add(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []genai.Part{genai.Text("lo")}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2},
	})
	assert.Equal(t, []string{"lo"}, deltas)

	final := acc.final()
	assert.Equal(t, "Hello", final.Content.Text())
	assert.Equal(t, "stop", final.FinishReason)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 5, final.Usage.TotalTokens())
}

func TestAccumulator_FunctionCall(t *testing.T) {
	acc := &accumulator{}
	acc.add(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{
			genai.FunctionCall{Name: "get_secret", Args: map[string]any{"password": "bapple"}},
		}}}},
	})

	final := acc.final()
	assert.Equal(t, "tool_calls", final.FinishReason)
	calls := final.Content.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "get_secret", calls[0].Name)
	assert.JSONEq(t, `{"password":"bapple"}`, calls[0].Arguments)
	assert.NotEmpty(t, calls[0].ID)
}
