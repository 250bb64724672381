package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrun/core"
)

// InstructionProvider computes instruction text when a model turn is built.
type InstructionProvider interface {
	Instruction(ic *core.InvocationContext) (string, error)
}

// InstructionFunc adapts a function to InstructionProvider.
type InstructionFunc func(*core.InvocationContext) (string, error)

func (f InstructionFunc) Instruction(ic *core.InvocationContext) (string, error) { return f(ic) }

type staticInstruction string

func (s staticInstruction) Instruction(*core.InvocationContext) (string, error) {
	return string(s), nil
}

// Instruction is an ordered list of static and dynamic fragments. The
// resolved text is later rendered as a template against session state.
type Instruction struct {
	parts []InstructionProvider
}

func NewInstructionFromText(text string) Instruction {
	return Instruction{parts: []InstructionProvider{staticInstruction(text)}}
}

func NewInstructionFromProvider(p InstructionProvider) Instruction {
	return Instruction{parts: []InstructionProvider{p}}
}

func NewInstructionFromFunc(f func(*core.InvocationContext) (string, error)) Instruction {
	return NewInstructionFromProvider(InstructionFunc(f))
}

// Then returns an instruction that resolves i followed by next, separated by
// a blank line.
func (i Instruction) Then(next Instruction) Instruction {
	parts := make([]InstructionProvider, 0, len(i.parts)+len(next.parts))
	parts = append(parts, i.parts...)

	return Instruction{parts: append(parts, next.parts...)}
}

// IsStatic reports whether no fragment depends on the invocation.
func (i Instruction) IsStatic() bool {
	for _, p := range i.parts {
		if _, ok := p.(staticInstruction); !ok {
			return false
		}
	}

	return true
}

// Resolve evaluates every fragment and joins the non-empty results.
func (i Instruction) Resolve(ic *core.InvocationContext) (string, error) {
	texts := make([]string, 0, len(i.parts))

	for n, p := range i.parts {
		text, err := p.Instruction(ic)
		if err != nil {
			return "", fmt.Errorf("instruction part %d: %w", n, err)
		}

		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}

	return strings.Join(texts, "\n\n"), nil
}
