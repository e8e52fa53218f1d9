// Package scoring rates claim pairs for topical overlap and opposition.
package scoring

import (
	"context"
	"fmt"

	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/llm"
)

// Scorer rates two claims. Both scores are in [0,1].
type Scorer interface {
	Score(ctx context.Context, a, b model.Claim) (model.PairScore, error)
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// New builds the configured scorer. With embeddings enabled the topic score
// comes from the embedder and the opposition score from the base scorer.
func New(name string, client llm.LLMClient, embedder llm.EmbedderClient, useEmbeddings bool, prompt string) (Scorer, error) {
	var base Scorer
	switch name {
	case "", "lexical":
		base = NewLexicalScorer()
	case "llm":
		if client == nil {
			return nil, fmt.Errorf("llm scoring needs an llm client")
		}
		base = NewLLMScorer(client, prompt)
	default:
		return nil, fmt.Errorf("unknown scorer: %s", name)
	}

	if !useEmbeddings {
		return base, nil
	}
	if embedder == nil {
		return nil, fmt.Errorf("the configured llm provider does not support embeddings")
	}
	return NewEmbeddingScorer(base, embedder), nil
}
