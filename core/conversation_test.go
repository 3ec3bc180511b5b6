package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConversation_PopsLatestUserMessage(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "be nice"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "what's up?"},
	}

	conv, latest, err := BuildConversation(msgs)
	require.NoError(t, err)

	assert.Equal(t, "what's up?", latest)
	assert.Equal(t, 3, conv.Len())
	assert.Equal(t, msgs[:3], conv.Messages())
}

func TestBuildConversation_NoTrailingUser(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}

	conv, latest, err := BuildConversation(msgs)
	require.NoError(t, err)

	assert.Empty(t, latest)
	assert.Equal(t, msgs, conv.Messages())
}

func TestBuildConversation_RoundTripsOrderRoleAndContent(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "u1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleTool, Content: "42", ToolCallID: "call-1", Name: "answer"},
		{Role: RoleAssistant, Content: "a2"},
	}

	conv, _, err := BuildConversation(msgs)
	require.NoError(t, err)

	assert.Equal(t, len(msgs), conv.Len())
	assert.Equal(t, msgs, conv.Messages())
}

func TestBuildConversation_KeepsAssistantToolCallsBeforeResults(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "weather?"},
		{Role: RoleAssistant, ToolCalls: []FunctionCall{{ID: "call_1", Name: "weather", Arguments: `{"city":"Berlin"}`}}},
		{Role: RoleTool, Content: "sunny", ToolCallID: "call_1", Name: "weather"},
		{Role: RoleAssistant, Content: "It is sunny."},
	}

	conv, latest, err := BuildConversation(msgs)
	require.NoError(t, err)

	assert.Empty(t, latest)
	contents := conv.Contents()
	require.Len(t, contents, 4)
	assert.Equal(t, []FunctionCall{{ID: "call_1", Name: "weather", Arguments: `{"city":"Berlin"}`}}, contents[1].FunctionCalls())
	assert.Equal(t, RoleTool, contents[2].Role)
	assert.Empty(t, contents[3].FunctionCalls())
	assert.Equal(t, msgs, conv.Messages())
}

func TestBuildConversation_NormalizesDeveloperRole(t *testing.T) {
	conv, latest, err := BuildConversation([]Message{
		{Role: RoleDeveloper, Content: "rules"},
		{Role: RoleUser, Content: "go"},
	})
	require.NoError(t, err)

	assert.Equal(t, "go", latest)
	require.Equal(t, 1, conv.Len())
	assert.Equal(t, RoleSystem, conv.Contents()[0].Role)
	assert.Equal(t, "rules", conv.Contents()[0].Text())
}

func TestBuildConversation_Malformed(t *testing.T) {
	tests := []struct {
		name string
		msgs []Message
	}{
		{"empty", nil},
		{"unknown role", []Message{{Role: "wizard", Content: "x"}, {Role: RoleUser, Content: "y"}}},
		{"missing role", []Message{{Content: "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := BuildConversation(tt.msgs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedHistory))
		})
	}
}

func TestBuildConversation_OnlyUserMessage(t *testing.T) {
	conv, latest, err := BuildConversation([]Message{{Role: RoleUser, Content: "hello"}})
	require.NoError(t, err)

	assert.Equal(t, "hello", latest)
	assert.Equal(t, 0, conv.Len())
}

func TestConversation_AppendAndOptions(t *testing.T) {
	temp := 0.2
	base := NewConversation(NewTextContent(RoleUser, "a")).WithOptions(GenerationOptions{Temperature: &temp})
	next := base.Append(NewTextContent(RoleAssistant, "b"))

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, next.Len())
	require.NotNil(t, next.Options().Temperature)
	assert.Equal(t, 0.2, *next.Options().Temperature)

	var nilConv *Conversation
	assert.Equal(t, 0, nilConv.Len())
	assert.Nil(t, nilConv.Contents())
	assert.Equal(t, 1, nilConv.Append(NewTextContent(RoleUser, "x")).Len())
}
