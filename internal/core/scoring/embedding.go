package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/llm"
)

// EmbeddingScorer replaces the base scorer's topic similarity with the
// cosine similarity of the claim embeddings.
type EmbeddingScorer struct {
	Base     Scorer
	Embedder llm.EmbedderClient
}

func NewEmbeddingScorer(base Scorer, embedder llm.EmbedderClient) *EmbeddingScorer {
	return &EmbeddingScorer{Base: base, Embedder: embedder}
}

func (s *EmbeddingScorer) Score(ctx context.Context, a, b model.Claim) (model.PairScore, error) {
	va, err := s.Embedder.Embed(ctx, a.Text)
	if err != nil {
		return model.PairScore{}, fmt.Errorf("failed to embed claim: %w", err)
	}
	vb, err := s.Embedder.Embed(ctx, b.Text)
	if err != nil {
		return model.PairScore{}, fmt.Errorf("failed to embed claim: %w", err)
	}

	score, err := s.Base.Score(ctx, a, b)
	if err != nil {
		return model.PairScore{}, err
	}
	score.Topic = clamp01(Cosine(va, vb))
	return score, nil
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
