// Package llm adapts the hosted model providers to the two capabilities the
// detector needs: text generation and text embeddings.
package llm

import (
	"context"
)

type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
