package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/model"
	"github.com/hupe1980/agentgate/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAgent struct {
	llm          model.Model
	tools        tool.Set
	stream       bool
	instructions string
}

func (a *testAgent) Name() string                                { return "test" }
func (a *testAgent) Model() model.Model                          { return a.llm }
func (a *testAgent) Instructions(context.Context) (string, error) { return a.instructions, nil }
func (a *testAgent) Tools() tool.Set                             { return a.tools }
func (a *testAgent) Streaming() bool                             { return a.stream }

func collect(t *testing.T, events <-chan core.Event, errs <-chan error) ([]core.Event, error) {
	t.Helper()
	var out []core.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out, <-errs
}

func userContents(text string) []core.Content {
	return []core.Content{core.NewTextContent(core.RoleUser, text)}
}

func TestFlow_PlainAnswer(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddTurn(core.NewTextContent(core.RoleAssistant, "Hello there"), &core.Usage{PromptTokens: 3, CompletionTokens: 2})

	f := New(&testAgent{llm: llm, instructions: "be nice"})
	runEvents, runErrs := f.Run(context.Background(), userContents("hi"), core.GenerationOptions{})
	events, err := collect(t, runEvents, runErrs)

	require.NoError(t, err)
	require.Len(t, events, 1)
	final, ok := events[0].(core.FinalMessage)
	require.True(t, ok)
	assert.Equal(t, "Hello there", final.Text)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 5, final.Usage.TotalTokens())

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be nice", reqs[0].Instructions)
	assert.Equal(t, "hi", reqs[0].Contents[0].Text())
}

func TestFlow_StreamingDeltasAndRemainder(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddText("abc")

	f := New(&testAgent{llm: llm, stream: true})
	runEvents, runErrs := f.Run(context.Background(), userContents("hi"), core.GenerationOptions{})
	events, err := collect(t, runEvents, runErrs)

	require.NoError(t, err)
	assert.Equal(t, []core.Event{
		core.TokenDelta{Text: "a"},
		core.TokenDelta{Text: "b"},
		core.TokenDelta{Text: "c"},
		core.FinalMessage{},
	}, events)
}

func TestFlow_ToolLoopReflectsNonFatalError(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddToolCall("c1", "get_secret", `{"password":"nope"}`)
	llm.AddText("Sorry, wrong password.")

	secret := tool.NewFunctionTool("get_secret", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, tool.NewToolError("get_secret", "Incorrect password", tool.CodeExecution)
	})

	f := New(&testAgent{llm: llm, tools: tool.NewSet(secret)})
	runEvents, runErrs := f.Run(context.Background(), userContents("secret?"), core.GenerationOptions{})
	events, err := collect(t, runEvents, runErrs)

	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, core.ToolCallEvent{ID: "c1", Name: "get_secret", Arguments: `{"password":"nope"}`}, events[0])
	assert.Equal(t, core.ToolResultEvent{ID: "c1", Name: "get_secret", Result: "Error: Incorrect password", IsError: true}, events[1])
	assert.Equal(t, core.FinalMessage{Text: "Sorry, wrong password."}, events[2])

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "get_secret", reqs[0].Tools[0].Function.Name)

	// The second turn sees the assistant call and the tool result.
	second := reqs[1].Contents
	require.Len(t, second, 3)
	assert.Equal(t, core.RoleTool, second[2].Role)
}

func TestFlow_FatalToolErrorAborts(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddToolCall("c1", "explode", `{}`)

	explode := tool.NewFunctionTool("explode", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, tool.NewFatalToolError("explode", "backend gone", tool.CodeExecution)
	})

	f := New(&testAgent{llm: llm, tools: tool.NewSet(explode)})
	runEvents, runErrs := f.Run(context.Background(), userContents("go"), core.GenerationOptions{})
	events, err := collect(t, runEvents, runErrs)

	require.Error(t, err)
	assert.True(t, tool.IsFatal(err))
	for _, ev := range events {
		_, isFinal := ev.(core.FinalMessage)
		assert.False(t, isFinal)
	}
}

func TestFlow_MaxModelCalls(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	for i := 0; i < 3; i++ {
		llm.AddToolCall("c", "noop", `{}`)
	}
	noop := tool.NewFunctionTool("noop", "", nil, func(context.Context, map[string]any) (any, error) { return "ok", nil })

	f := New(&testAgent{llm: llm, tools: tool.NewSet(noop)}, func(o *Options) { o.MaxModelCalls = 2 })
	runEvents, runErrs := f.Run(context.Background(), userContents("loop"), core.GenerationOptions{})
	_, err := collect(t, runEvents, runErrs)

	assert.ErrorIs(t, err, core.ErrCallLimitExceeded)
}

type failingModel struct{ err error }

func (m failingModel) Generate(context.Context, model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response)
	errs := make(chan error, 1)
	close(out)
	errs <- m.err
	close(errs)
	return out, errs
}

func (m failingModel) Info() model.Info { return model.Info{Name: "failing"} }

func TestFlow_ModelError(t *testing.T) {
	boom := errors.New("backend unavailable")
	f := New(&testAgent{llm: failingModel{err: boom}})

	runEvents, runErrs := f.Run(context.Background(), userContents("hi"), core.GenerationOptions{})
	_, err := collect(t, runEvents, runErrs)

	assert.ErrorIs(t, err, boom)
}

func TestFlow_PassesGenerationOptions(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	temp := 0.1

	f := New(&testAgent{llm: llm})
	runEvents, runErrs := f.Run(context.Background(), userContents("hi"), core.GenerationOptions{Temperature: &temp})
	_, err := collect(t, runEvents, runErrs)

	require.NoError(t, err)
	reqs := llm.Requests()
	require.NotNil(t, reqs[0].Options.Temperature)
	assert.InDelta(t, 0.1, *reqs[0].Options.Temperature, 1e-9)
}

func TestContentsProcessor_KeepsSystemWhenTrimming(t *testing.T) {
	state := &State{Contents: []core.Content{
		core.NewTextContent(core.RoleSystem, "sys"),
		core.NewTextContent(core.RoleUser, "1"),
		core.NewTextContent(core.RoleAssistant, "2"),
		core.NewTextContent(core.RoleUser, "3"),
	}}
	var req model.Request

	require.NoError(t, NewContentsProcessor(2).ProcessRequest(context.Background(), &req, state))

	require.Len(t, req.Contents, 3)
	assert.Equal(t, "sys", req.Contents[0].Text())
	assert.Equal(t, "2", req.Contents[1].Text())
	assert.Equal(t, "3", req.Contents[2].Text())
}

func TestProcessorNames(t *testing.T) {
	assert.Equal(t, "instructions", NewInstructionsProcessor().Name())
	assert.Equal(t, "contents", NewContentsProcessor(0).Name())
	assert.Equal(t, "tools", NewToolsProcessor().Name())
}
