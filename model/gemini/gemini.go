// Package gemini provides an implementation of model.Model backed by the
// Google Gemini API (streaming, function calling and token usage).
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/internal/util"
	"github.com/hupe1980/agentgate/model"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Options configures the Gemini model adapter.
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	APIKey          string
	Endpoint        string
}

// Model wraps a genai.Client behind the generic model.Model interface.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:           "gemini-1.5-flash",
		Temperature:     0.7,
		MaxOutputTokens: 4096,
	}
}

// NewModel creates a Gemini model with its own client. Close releases the client.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.ClientOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a Gemini model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Close releases the underlying client.
func (m *Model) Close() error { return m.client.Close() }

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		gm := m.generativeModel(req)
		history, system := buildHistory(req.Contents)
		if instr := joinNonEmpty(req.Instructions, system); instr != "" {
			gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(instr)}}
		}
		if len(history) == 0 {
			errCh <- errors.New("gemini: no contents provided")
			return
		}

		cs := gm.StartChat()
		cs.History = history[:len(history)-1]
		last := history[len(history)-1]

		acc := &accumulator{}
		if !req.Stream {
			resp, err := cs.SendMessage(ctx, last.Parts...)
			if err != nil {
				errCh <- fmt.Errorf("gemini api error: %w", err)
				return
			}
			acc.add(resp)
			out <- acc.final()
			return
		}

		it := cs.SendMessageStream(ctx, last.Parts...)
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				errCh <- fmt.Errorf("gemini streaming error: %w", err)
				return
			}
			for _, delta := range acc.add(resp) {
				select {
				case out <- model.Response{Partial: true, Content: core.NewTextContent(core.RoleAssistant, delta)}:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}

		select {
		case out <- acc.final():
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()

	return out, errCh
}

func (m *Model) generativeModel(req model.Request) *genai.GenerativeModel {
	gm := m.client.GenerativeModel(m.opts.Model)
	gm.SetTemperature(m.opts.Temperature)
	gm.SetMaxOutputTokens(m.opts.MaxOutputTokens)

	o := req.Options
	if o.Temperature != nil {
		gm.SetTemperature(float32(*o.Temperature))
	}
	if o.TopP != nil {
		gm.SetTopP(float32(*o.TopP))
	}
	if o.MaxTokens != nil {
		gm.SetMaxOutputTokens(int32(*o.MaxTokens))
	}
	if len(o.Stop) > 0 {
		gm.StopSequences = o.Stop
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  toSchema(t.Function.Parameters),
			})
		}
		gm.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return gm
}

// accumulator folds streamed responses into the final turn.
type accumulator struct {
	text  strings.Builder
	calls []core.FunctionCall
	usage *core.Usage
	stop  genai.FinishReason
}

// add records resp and returns its new text fragments.
func (a *accumulator) add(resp *genai.GenerateContentResponse) []string {
	if resp == nil {
		return nil
	}
	if resp.UsageMetadata != nil {
		a.usage = &core.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != genai.FinishReasonUnspecified {
		a.stop = cand.FinishReason
	}
	if cand.Content == nil {
		return nil
	}

	var deltas []string
	for _, p := range cand.Content.Parts {
		switch part := p.(type) {
		case genai.Text:
			if part != "" {
				a.text.WriteString(string(part))
				deltas = append(deltas, string(part))
			}
		case genai.FunctionCall:
			args, err := json.Marshal(part.Args)
			if err != nil {
				args = []byte("{}")
			}
			a.calls = append(a.calls, core.FunctionCall{
				ID:        "call_" + core.NewID(),
				Name:      part.Name,
				Arguments: string(args),
			})
		}
	}
	return deltas
}

func (a *accumulator) final() model.Response {
	parts := make([]core.Part, 0, len(a.calls)+1)
	if a.text.Len() > 0 {
		parts = append(parts, core.TextPart{Text: a.text.String()})
	}
	for _, c := range a.calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}

	finish := "stop"
	switch {
	case len(a.calls) > 0:
		finish = "tool_calls"
	case a.stop == genai.FinishReasonMaxTokens:
		finish = "length"
	}

	return model.Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finish,
		Usage:        a.usage,
	}
}

// buildHistory converts contents into Gemini chat history. System contents
// are returned separately because Gemini takes them as a system instruction.
// Consecutive entries with the same role are merged.
func buildHistory(contents []core.Content) ([]*genai.Content, string) {
	var (
		history []*genai.Content
		system  []string
	)
	callNames := map[string]string{}

	appendParts := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(history); n > 0 && history[n-1].Role == role {
			history[n-1].Parts = append(history[n-1].Parts, parts...)
			return
		}
		history = append(history, &genai.Content{Role: role, Parts: parts})
	}

	for _, c := range contents {
		switch c.Role {
		case core.RoleSystem:
			if text := c.Text(); text != "" {
				system = append(system, text)
			}
		case core.RoleAssistant:
			var parts []genai.Part
			for _, p := range c.Parts {
				switch part := p.(type) {
				case core.TextPart:
					if part.Text != "" {
						parts = append(parts, genai.Text(part.Text))
					}
				case core.FunctionCallPart:
					args := map[string]any{}
					_ = json.Unmarshal([]byte(part.FunctionCall.Arguments), &args)
					callNames[part.FunctionCall.ID] = part.FunctionCall.Name
					parts = append(parts, genai.FunctionCall{Name: part.FunctionCall.Name, Args: args})
				}
			}
			appendParts("model", parts...)
		case core.RoleTool:
			var parts []genai.Part
			for _, p := range c.Parts {
				fr, ok := p.(core.FunctionResponsePart)
				if !ok {
					continue
				}
				name := fr.FunctionResponse.Name
				if name == "" {
					name = callNames[fr.FunctionResponse.ID]
				}
				if name == "" {
					parts = append(parts, genai.Text(model.ResponseText(fr.FunctionResponse)))
					continue
				}
				payload := map[string]any{"result": model.ResponseText(fr.FunctionResponse)}
				if fr.FunctionResponse.Error != "" {
					payload = map[string]any{"error": fr.FunctionResponse.Error}
				}
				parts = append(parts, genai.FunctionResponse{Name: name, Response: payload})
			}
			appendParts("user", parts...)
		default:
			if text := c.Text(); text != "" {
				appendParts("user", genai.Text(text))
			}
		}
	}

	return history, strings.Join(system, "\n\n")
}

// toSchema converts a JSON schema map into a genai.Schema.
func toSchema(s map[string]any) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{}
	switch t, _ := s["type"].(string); t {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	default:
		out.Type = genai.TypeObject
	}

	out.Description, _ = s["description"].(string)

	switch enum := s["enum"].(type) {
	case []string:
		out.Enum = enum
	case []any:
		for _, e := range enum {
			out.Enum = append(out.Enum, fmt.Sprint(e))
		}
	}

	if items, ok := s["items"].(map[string]any); ok {
		out.Items = toSchema(items)
	}

	if props := util.Properties(s); len(props) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				out.Properties[name] = toSchema(pm)
			}
		}
	}
	out.Required = util.RequiredFields(s)

	return out
}

func joinNonEmpty(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:            m.opts.Model,
		Provider:        "gemini",
		Family:          "gemini",
		SupportsTools:   true,
		SupportsJSON:    true,
		SupportsVision:  true,
		SupportsStreams: true,
	}
}
