package connector

import (
	"context"
	"fmt"

	"github.com/flowbothq/flowbot/interp"
)

// TextGenerator produces a completion for a prompt over some content. The
// OpenRouter client satisfies it; tests plug in fakes.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, content string) (string, error)
}

// LLM runs a text-generation step. The prompt comes from config; the
// content to process comes from the prompt itself or, when absent, from
// the accumulated context via the standard fallback chain.
type LLM struct {
	generator TextGenerator
}

func NewLLM(generator TextGenerator) *LLM {
	return &LLM{generator: generator}
}

func (l *LLM) Kind() Kind { return KindLLM }

func (l *LLM) Execute(ctx context.Context, req Request) (map[string]any, error) {
	prompt, err := requireString(req.Config, "prompt", "instruction")
	if err != nil {
		return nil, err
	}
	content := optionalString(req.Config, "content", "input")
	if content == "" {
		content = interp.ResolveContent(req.Context)
	}

	result, err := l.generator.Generate(ctx, prompt, content)
	if err != nil {
		return nil, fmt.Errorf("llm generation failed: %w", err)
	}

	// Aliases let later steps reference the result under whichever name
	// their templates use.
	return map[string]any{
		"llm_result": result,
		"summary":    result,
		"content":    result,
		"text":       result,
	}, nil
}
