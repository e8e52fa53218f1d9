// Package extraction reduces a note to the claims the contradiction
// detector compares.
package extraction

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/agenthands/notegraph/internal/core/common"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/llm"
)

// ClaimExtractor splits a note into atomic assertions.
type ClaimExtractor interface {
	Extract(ctx context.Context, note *model.Note) ([]model.Claim, error)
}

// maxClaims bounds the claims taken from one note; the detector compares
// claims pairwise.
const maxClaims = 24

// SentenceExtractor treats every sentence of the note as a claim.
type SentenceExtractor struct{}

func (SentenceExtractor) Extract(_ context.Context, note *model.Note) ([]model.Claim, error) {
	return toClaims(note.ID, SplitSentences(note.Text())), nil
}

// SplitSentences breaks text at sentence punctuation and line breaks.
// Fragments without a letter are dropped.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if s != "" && strings.IndexFunc(s, unicode.IsLetter) >= 0 {
			out = append(out, s)
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		switch {
		case r == '\n':
			flush()
		case r == '.' || r == '!' || r == '?' || r == ';':
			// Keep decimals such as 2.5 inside the sentence.
			if r == '.' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
				b.WriteRune(r)
				continue
			}
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

func toClaims(noteID string, texts []string) []model.Claim {
	seen := make(map[string]struct{}, len(texts))
	claims := make([]model.Claim, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		claims = append(claims, model.Claim{NoteID: noteID, Text: t})
		if len(claims) == maxClaims {
			break
		}
	}
	return claims
}

const defaultClaimsPrompt = `Split the following note into short, self-contained factual claims or opinions.
Keep the author's wording where possible and resolve pronouns.

Note:
%s

Return a JSON object with a list of claims.
Example: { "claims": ["Solar power is cheap", "Solar power needs storage"] }`

// LLMExtractor asks the language model for the claims. When the answer
// cannot be parsed it falls back to sentence splitting; transport errors are
// returned so the job can be retried.
type LLMExtractor struct {
	LLM    llm.LLMClient
	Prompt string
	logger *zap.Logger
}

func NewLLMExtractor(client llm.LLMClient, prompt string, logger *zap.Logger) *LLMExtractor {
	if prompt == "" {
		prompt = defaultClaimsPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{LLM: client, Prompt: prompt, logger: logger}
}

func (e *LLMExtractor) Extract(ctx context.Context, note *model.Note) ([]model.Claim, error) {
	response, err := e.LLM.Generate(ctx, fmt.Sprintf(e.Prompt, note.Text()))
	if err != nil {
		return nil, fmt.Errorf("failed to generate claims: %w", err)
	}

	result, err := common.ParseJSON[model.ExtractedClaims](response)
	if err != nil || len(result.Claims) == 0 {
		e.logger.Warn("claim extraction answer unusable, splitting sentences instead",
			zap.String("note_id", note.ID), zap.Error(err))
		return SentenceExtractor{}.Extract(ctx, note)
	}
	return toClaims(note.ID, result.Claims), nil
}

// New returns the extractor for a configured name.
func New(name string, client llm.LLMClient, prompt string, logger *zap.Logger) (ClaimExtractor, error) {
	switch name {
	case "", "sentence":
		return SentenceExtractor{}, nil
	case "llm":
		if client == nil {
			return nil, fmt.Errorf("llm claim extraction needs an llm client")
		}
		return NewLLMExtractor(client, prompt, logger), nil
	}
	return nil, fmt.Errorf("unknown claim extractor: %s", name)
}
