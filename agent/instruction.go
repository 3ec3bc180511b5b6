package agent

import (
	"context"
	"strings"

	"github.com/hupe1980/agentgate/internal/util"
)

// Vars are the values available to templated instructions.
type Vars map[string]any

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(ctx context.Context, vars Vars) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, vars Vars) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, vars Vars) (string, error) { return f(ctx, vars) }

// Instruction represents either a static instruction string, a text/template
// rendered against Vars, or a dynamic provider.
type Instruction struct {
	text     string
	template bool
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromTemplate creates an Instruction rendered with
// text/template, e.g. "You are {{.agent}}. Today is {{.date}}.".
func NewInstructionFromTemplate(text string) Instruction {
	return Instruction{text: text, template: strings.Contains(text, "{{")}
}

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, vars Vars) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is a plain string.
func (i Instruction) IsStatic() bool { return i.provider == nil && !i.template }

// Resolve returns the instruction text, rendering the template or invoking
// the provider if needed.
func (i Instruction) Resolve(ctx context.Context, vars Vars) (string, error) {
	switch {
	case i.provider != nil:
		return i.provider.Instruction(ctx, vars)
	case i.template:
		return util.RenderTemplate(i.text, vars)
	default:
		return i.text, nil
	}
}
