package passthrough

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentgate/backend"
	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/internal/testutil"
	"github.com/hupe1980/agentgate/model"
	"github.com/hupe1980/agentgate/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistered(t *testing.T) {
	_, err := registry.Global().Lookup(Name)
	require.NoError(t, err)
}

func TestNew_RequiresBackend(t *testing.T) {
	prev := backend.Install(nil)
	t.Cleanup(func() { backend.Install(prev) })

	_, err := New("hi", nil)
	assert.True(t, errors.Is(err, backend.ErrNotInstalled))
}

func TestNew_UsesDefaultBackend(t *testing.T) {
	b, err := backend.New(context.Background(), backend.Config{Provider: backend.ProviderMock, Model: "mock"})
	require.NoError(t, err)
	prev := backend.Install(b)
	t.Cleanup(func() { backend.Install(prev) })

	a, err := New("hi", nil)
	require.NoError(t, err)
	assert.Equal(t, Name, a.Name())

	events, errs := a.Run(context.Background())
	got := testutil.Collect(events)
	require.NoError(t, <-errs)

	var text string
	for _, ev := range got {
		switch e := ev.(type) {
		case core.TokenDelta:
			text += e.Text
		case core.FinalMessage:
			text += e.Text
		}
	}
	assert.Equal(t, "Mock response to: hi", text)
	assert.IsType(t, core.FinalMessage{}, got[len(got)-1])
}

func TestNewWithModel_SendsSystemMessageAndHistory(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddText("Sure.")

	conv := core.NewConversation(
		core.NewTextContent(core.RoleUser, "earlier"),
		core.NewTextContent(core.RoleAssistant, "reply"),
	)
	a := NewWithModel(llm, "now", conv)

	var text string
	events, errs := a.Run(context.Background())
	for ev := range events {
		switch e := ev.(type) {
		case core.TokenDelta:
			text += e.Text
		case core.FinalMessage:
			text += e.Text
		}
	}
	require.NoError(t, <-errs)
	assert.Equal(t, "Sure.", text)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, SystemMessage, reqs[0].Instructions)
	require.Len(t, reqs[0].Contents, 3)
	assert.Equal(t, "now", reqs[0].Contents[2].Text())
	assert.True(t, reqs[0].Stream)
}
