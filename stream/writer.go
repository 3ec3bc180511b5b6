package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/agentgate/api"
	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/logging"
)

// ToolEventMode controls how tool events appear on the wire.
type ToolEventMode string

const (
	// ToolEventsSuppress drops tool events.
	ToolEventsSuppress ToolEventMode = "suppress"
	// ToolEventsComment writes tool events as SSE comment lines, which
	// conforming clients ignore.
	ToolEventsComment ToolEventMode = "comment"
)

// ParseToolEventMode validates a configured mode. The empty string selects
// ToolEventsSuppress.
func ParseToolEventMode(s string) (ToolEventMode, error) {
	switch ToolEventMode(strings.ToLower(s)) {
	case "", ToolEventsSuppress:
		return ToolEventsSuppress, nil
	case ToolEventsComment:
		return ToolEventsComment, nil
	default:
		return "", fmt.Errorf("unknown tool event mode %q", s)
	}
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	ToolEvents   ToolEventMode
	IncludeUsage bool
	Logger       logging.Logger
}

// Writer serializes events as chat.completion.chunk SSE frames.
//
// Every event produces at most one frame, written and flushed immediately.
// "data: [DONE]" is written exactly once, on every exit path of Stream.
type Writer struct {
	w     io.Writer
	flush func()
	opts  WriterOptions

	id      string
	created int64
	model   string

	roleSent bool
	done     bool
}

// NewWriter creates a Writer for one response. flush may be nil.
func NewWriter(w io.Writer, flush func(), id string, created int64, model string, optFns ...func(o *WriterOptions)) *Writer {
	opts := WriterOptions{
		ToolEvents: ToolEventsSuppress,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if flush == nil {
		flush = func() {}
	}

	return &Writer{
		w:       w,
		flush:   flush,
		opts:    opts,
		id:      id,
		created: created,
		model:   model,
	}
}

// Stream writes one frame per event until the sequence ends, an error event
// arrives or ctx is cancelled. It returns the error that ended the stream,
// if any. The terminating [DONE] frame is always written.
func (sw *Writer) Stream(ctx context.Context, events <-chan core.Event) (err error) {
	defer func() {
		if derr := sw.Done(); err == nil {
			err = derr
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				// Implicit final message.
				return sw.Final(core.FinalMessage{})
			}
			switch e := ev.(type) {
			case core.TokenDelta:
				if e.Text == "" {
					continue
				}
				if err := sw.Delta(e.Text); err != nil {
					return err
				}
			case core.ToolCallEvent:
				if err := sw.comment("tool_call", e); err != nil {
					return err
				}
			case core.ToolResultEvent:
				if err := sw.comment("tool_result", e); err != nil {
					return err
				}
			case core.FinalMessage:
				return sw.Final(e)
			case core.ErrorEvent:
				if err := sw.Error(e); err != nil {
					return err
				}
				return e
			}
		}
	}
}

// Delta writes a content chunk. The first chunk also carries the role.
func (sw *Writer) Delta(text string) error {
	return sw.writeChunk(sw.chunk(sw.delta(text), nil))
}

// Final writes the terminal content chunk with finish_reason "stop", then the
// usage chunk if requested. The terminal chunk always carries content, even
// when it is empty.
func (sw *Writer) Final(final core.FinalMessage) error {
	stop := api.FinishReasonStop
	d := sw.delta(final.Text)
	text := final.Text
	d.Content = &text
	if err := sw.writeChunk(sw.chunk(d, &stop)); err != nil {
		return err
	}

	if !sw.opts.IncludeUsage {
		return nil
	}
	usage := api.NewUsage(final.Usage)
	return sw.writeChunk(api.ChatCompletionChunk{
		ID:                sw.id,
		Object:            api.ObjectChatCompletionChunk,
		Created:           sw.created,
		Model:             sw.model,
		SystemFingerprint: api.SystemFingerprint,
		Choices:           []api.ChunkChoice{},
		Usage:             &usage,
	})
}

// Error writes an error frame in the OpenAI envelope format.
func (sw *Writer) Error(err error) error {
	sw.opts.Logger.Warn("stream.error", "error", err)
	return sw.writeData(api.ErrorResponse{Error: Classify(err)})
}

// Done writes the [DONE] terminator. Calls after the first are no-ops.
func (sw *Writer) Done() error {
	if sw.done {
		return nil
	}
	sw.done = true
	if _, err := io.WriteString(sw.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	sw.flush()
	return nil
}

func (sw *Writer) delta(text string) api.Delta {
	d := api.Delta{}
	if !sw.roleSent {
		d.Role = core.RoleAssistant
		sw.roleSent = true
	}
	if text != "" || d.Role != "" {
		d.Content = &text
	}
	return d
}

func (sw *Writer) chunk(delta api.Delta, finish *string) api.ChatCompletionChunk {
	return api.ChatCompletionChunk{
		ID:                sw.id,
		Object:            api.ObjectChatCompletionChunk,
		Created:           sw.created,
		Model:             sw.model,
		SystemFingerprint: api.SystemFingerprint,
		Choices: []api.ChunkChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}

func (sw *Writer) writeChunk(chunk api.ChatCompletionChunk) error {
	return sw.writeData(chunk)
}

func (sw *Writer) writeData(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal sse data: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	sw.flush()
	return nil
}

// comment writes a tool event as an SSE comment line when enabled.
func (sw *Writer) comment(kind string, v any) error {
	if sw.opts.ToolEvents != ToolEventsComment {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal tool event: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, ": %s %s\n\n", kind, data); err != nil {
		return err
	}
	sw.flush()
	return nil
}
