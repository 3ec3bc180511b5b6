package flow

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/model"
)

// InstructionsProcessor resolves the agent's system prompt.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets req.Instructions.
func (p *InstructionsProcessor) ProcessRequest(ctx context.Context, req *model.Request, state *State) error {
	instructions, err := state.Agent.Instructions(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}
	req.Instructions = instructions
	return nil
}

// ContentsProcessor copies the conversation into the request, keeping at
// most MaxMessages of the most recent contents. System contents are always
// kept.
type ContentsProcessor struct {
	MaxMessages int
}

// NewContentsProcessor creates a new contents processor. maxMessages <= 0
// keeps the whole history.
func NewContentsProcessor(maxMessages int) *ContentsProcessor {
	return &ContentsProcessor{MaxMessages: maxMessages}
}

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest sets req.Contents.
func (p *ContentsProcessor) ProcessRequest(_ context.Context, req *model.Request, state *State) error {
	contents := state.Contents
	if p.MaxMessages > 0 && len(contents) > p.MaxMessages {
		var system []core.Content
		for _, c := range contents[:len(contents)-p.MaxMessages] {
			if c.Role == core.RoleSystem {
				system = append(system, c)
			}
		}
		contents = append(system, contents[len(contents)-p.MaxMessages:]...)
	}

	req.Contents = append([]core.Content(nil), contents...)
	return nil
}

// ToolsProcessor advertises the agent's tools to the model.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest sets req.Tools, sorted by name.
func (p *ToolsProcessor) ProcessRequest(_ context.Context, req *model.Request, state *State) error {
	tools := state.Agent.Tools()
	if len(tools) == 0 {
		return nil
	}

	defs := make([]model.FunctionDefinition, 0, len(tools))
	for _, name := range tools.Names() {
		t := tools[name]
		defs = append(defs, model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	req.Tools = model.ToolDefinitions(defs...)
	return nil
}
