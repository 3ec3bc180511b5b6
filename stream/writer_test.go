package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/agentgate/api"
	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frames splits an SSE body into its frames.
func frames(body string) []string {
	var out []string
	for _, f := range strings.Split(body, "\n\n") {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func decodeChunk(t *testing.T, frame string) api.ChatCompletionChunk {
	t.Helper()
	require.True(t, strings.HasPrefix(frame, "data: "), frame)
	var chunk api.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &chunk))
	return chunk
}

func countDone(body string) int {
	return strings.Count(body, "data: [DONE]\n\n")
}

func newTestWriter(buf *bytes.Buffer, flushes *int, optFns ...func(o *WriterOptions)) *Writer {
	return NewWriter(buf, func() { *flushes++ }, "chatcmpl-test", 42, "hello-world", optFns...)
}

func TestWriter_ThreeTokensAndFinal(t *testing.T) {
	var (
		buf     bytes.Buffer
		flushes int
	)
	sw := newTestWriter(&buf, &flushes)

	err := sw.Stream(context.Background(), testutil.NewEventBuilder().Tokens("Hel", "lo", "!").Final("").Channel())
	require.NoError(t, err)

	fs := frames(buf.String())
	require.Len(t, fs, 5)
	assert.Equal(t, "data: [DONE]", fs[4])
	assert.Equal(t, 1, countDone(buf.String()))
	assert.Equal(t, 5, flushes)

	first := decodeChunk(t, fs[0])
	assert.Equal(t, "chatcmpl-test", first.ID)
	assert.Equal(t, "chat.completion.chunk", first.Object)
	assert.Equal(t, int64(42), first.Created)
	assert.Equal(t, "hello-world", first.Model)
	assert.Equal(t, "assistant", first.Choices[0].Delta.Role)
	assert.Equal(t, "Hel", *first.Choices[0].Delta.Content)
	assert.Nil(t, first.Choices[0].FinishReason)

	second := decodeChunk(t, fs[1])
	assert.Empty(t, second.Choices[0].Delta.Role)
	assert.Equal(t, "lo", *second.Choices[0].Delta.Content)

	last := decodeChunk(t, fs[3])
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "stop", *last.Choices[0].FinishReason)
	require.NotNil(t, last.Choices[0].Delta.Content)
	assert.Equal(t, "", *last.Choices[0].Delta.Content)
	assert.Contains(t, fs[3], `"content":""`)

	withContent := 0
	for _, f := range fs[:4] {
		if decodeChunk(t, f).Choices[0].Delta.Content != nil {
			withContent++
		}
	}
	assert.Equal(t, 4, withContent)
}

func TestWriter_FinalTextInTerminalChunk(t *testing.T) {
	var (
		buf     bytes.Buffer
		flushes int
	)
	sw := newTestWriter(&buf, &flushes)

	require.NoError(t, sw.Stream(context.Background(), testutil.NewEventBuilder().Final("all at once").Channel()))

	fs := frames(buf.String())
	require.Len(t, fs, 2)
	chunk := decodeChunk(t, fs[0])
	assert.Equal(t, "assistant", chunk.Choices[0].Delta.Role)
	assert.Equal(t, "all at once", *chunk.Choices[0].Delta.Content)
	assert.Equal(t, "stop", *chunk.Choices[0].FinishReason)
}

func TestWriter_ErrorTerminatesWithSingleDone(t *testing.T) {
	var (
		buf     bytes.Buffer
		flushes int
	)
	sw := newTestWriter(&buf, &flushes)

	events := testutil.NewEventBuilder().Tokens("a").Error("agent crashed").Tokens("never").Final("never").Channel()
	err := sw.Stream(context.Background(), events)

	require.Error(t, err)
	body := buf.String()
	assert.Equal(t, 1, countDone(body))
	assert.NotContains(t, body, "never")

	fs := frames(body)
	require.Len(t, fs, 3)
	var env api.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(fs[1], "data: ")), &env))
	assert.Equal(t, "agent crashed", env.Error.Message)
	assert.Equal(t, ErrorTypeAgent, env.Error.Type)
	assert.Equal(t, "data: [DONE]", fs[2])
}

func TestWriter_ImplicitFinal(t *testing.T) {
	var (
		buf     bytes.Buffer
		flushes int
	)
	sw := newTestWriter(&buf, &flushes)

	require.NoError(t, sw.Stream(context.Background(), testutil.NewEventBuilder().Tokens("a").Channel()))

	fs := frames(buf.String())
	require.Len(t, fs, 3)
	assert.Equal(t, "stop", *decodeChunk(t, fs[1]).Choices[0].FinishReason)
	assert.Equal(t, 1, countDone(buf.String()))
}

func TestWriter_CancelledStillSendsDone(t *testing.T) {
	var (
		buf     bytes.Buffer
		flushes int
	)
	sw := newTestWriter(&buf, &flushes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sw.Stream(ctx, make(chan core.Event))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "data: [DONE]\n\n", buf.String())

	// Done is idempotent.
	require.NoError(t, sw.Done())
	assert.Equal(t, 1, countDone(buf.String()))
}

func TestWriter_ToolEvents(t *testing.T) {
	events := func() <-chan core.Event {
		return testutil.NewEventBuilder().ToolCall("get_secret", `{"password":"bapple"}`).ToolResult("get_secret", "stawberry", false).Final("done").Channel()
	}

	t.Run("suppressed by default", func(t *testing.T) {
		var (
			buf     bytes.Buffer
			flushes int
		)
		require.NoError(t, newTestWriter(&buf, &flushes).Stream(context.Background(), events()))
		assert.NotContains(t, buf.String(), "get_secret")
		assert.Len(t, frames(buf.String()), 2)
	})

	t.Run("comments", func(t *testing.T) {
		var (
			buf     bytes.Buffer
			flushes int
		)
		sw := newTestWriter(&buf, &flushes, func(o *WriterOptions) { o.ToolEvents = ToolEventsComment })
		require.NoError(t, sw.Stream(context.Background(), events()))

		fs := frames(buf.String())
		require.Len(t, fs, 4)
		assert.True(t, strings.HasPrefix(fs[0], ": tool_call "))
		assert.True(t, strings.HasPrefix(fs[1], ": tool_result "))
		// Tool text never reaches the content deltas.
		assert.Equal(t, "done", *decodeChunk(t, fs[2]).Choices[0].Delta.Content)
	})
}

func TestWriter_IncludeUsage(t *testing.T) {
	var (
		buf     bytes.Buffer
		flushes int
	)
	sw := newTestWriter(&buf, &flushes, func(o *WriterOptions) { o.IncludeUsage = true })

	require.NoError(t, sw.Stream(context.Background(), testutil.NewEventBuilder().Tokens("a").FinalWithUsage("", 5, 6).Channel()))

	fs := frames(buf.String())
	require.Len(t, fs, 4)
	usage := decodeChunk(t, fs[2])
	assert.Empty(t, usage.Choices)
	require.NotNil(t, usage.Usage)
	assert.Equal(t, 11, usage.Usage.TotalTokens)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("client gone") }

func TestWriter_WriteErrorIsReturned(t *testing.T) {
	sw := NewWriter(failingWriter{}, nil, "id", 1, "m")

	err := sw.Stream(context.Background(), testutil.NewEventBuilder().Tokens("a").Channel())

	assert.EqualError(t, err, "client gone")
}

func TestParseToolEventMode(t *testing.T) {
	m, err := ParseToolEventMode("")
	require.NoError(t, err)
	assert.Equal(t, ToolEventsSuppress, m)

	m, err = ParseToolEventMode("COMMENT")
	require.NoError(t, err)
	assert.Equal(t, ToolEventsComment, m)

	_, err = ParseToolEventMode("inline")
	assert.Error(t, err)
}
