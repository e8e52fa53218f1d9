package scoring

import (
	"context"
	"fmt"

	"github.com/agenthands/notegraph/internal/core/common"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/llm"
)

const defaultOppositionPrompt = `Compare two claims taken from a user's notes.
Be conservative. Only report opposition for claims that cannot both hold at the same time,
such as incompatible facts or competing exclusive recommendations.

Claim A: %s
Claim B: %s

Return a JSON object with:
- "topic_similarity": how much the claims talk about the same subject, from 0 to 1
- "opposition": how strongly the claims contradict each other, from 0 to 1
- "explanation": one sentence describing the conflict, empty if there is none
Example: { "topic_similarity": 0.8, "opposition": 0.9, "explanation": "A says X is best, B says only Y works" }`

// LLMScorer asks the language model to rate the pair.
type LLMScorer struct {
	LLM    llm.LLMClient
	Prompt string
}

func NewLLMScorer(client llm.LLMClient, prompt string) *LLMScorer {
	if prompt == "" {
		prompt = defaultOppositionPrompt
	}
	return &LLMScorer{LLM: client, Prompt: prompt}
}

func (s *LLMScorer) Score(ctx context.Context, a, b model.Claim) (model.PairScore, error) {
	prompt := fmt.Sprintf(s.Prompt, a.Text, b.Text)

	response, err := s.LLM.Generate(ctx, prompt)
	if err != nil {
		return model.PairScore{}, fmt.Errorf("failed to generate contradiction check: %w", err)
	}

	result, err := common.ParseJSON[model.PairScore](response)
	if err != nil {
		return model.PairScore{}, fmt.Errorf("failed to parse contradiction check: %w", err)
	}

	result.Topic = clamp01(result.Topic)
	result.Opposition = clamp01(result.Opposition)
	return result, nil
}
