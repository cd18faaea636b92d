// Package provider defines the LLMProvider capability: the only surface the
// core sees for language-model completion and text embedding. Concrete
// providers (provider/anthropic, provider/openai) are external collaborators
// selected by configuration.
package provider

import "context"

// CompleteOptions bounds a single completion request.
type CompleteOptions struct {
	MaxTokens   int
	Temperature float64
}

// LLMProvider abstracts a language model backend behind two operations plus
// a model/dimension descriptor.
type LLMProvider interface {
	// Complete returns the model's text completion for prompt.
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)

	// Embed returns a fixed-dimension vector for text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Model names the concrete model backing this provider.
	Model() string

	// Dim is the dimensionality of vectors returned by Embed.
	Dim() int
}
