// Package summary gives clusters of notes a short human-readable name.
package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/agenthands/notegraph/internal/core/common"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/llm"
)

type Namer interface {
	Name(ctx context.Context, cluster model.Cluster) (string, error)
}

// KeywordNamer names a cluster after the words its titles share most.
type KeywordNamer struct {
	MaxWords int
}

var titleStopwords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "also": {}, "because": {}, "before": {},
	"from": {}, "have": {}, "into": {}, "more": {}, "note": {}, "notes": {},
	"only": {}, "over": {}, "some": {}, "than": {}, "that": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {}, "this": {},
	"what": {}, "when": {}, "which": {}, "with": {}, "without": {}, "your": {},
}

func (k KeywordNamer) Name(_ context.Context, cluster model.Cluster) (string, error) {
	limit := k.MaxWords
	if limit < 1 {
		limit = 2
	}

	counts := make(map[string]int)
	for _, title := range cluster.Titles {
		seen := make(map[string]bool)
		for _, w := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			if len([]rune(w)) < 4 || seen[w] {
				continue
			}
			if _, stop := titleStopwords[w]; stop {
				continue
			}
			seen[w] = true
			counts[w]++
		}
	}
	if len(counts) == 0 {
		return "", nil
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > limit {
		words = words[:limit]
	}
	return strings.Join(words, " / "), nil
}

const defaultClusterNamePrompt = `The following notes were grouped together because they link to each other.

Titles:
%s
Give the group a short name of at most four words describing its common theme.
Return a JSON object: { "name": "..." }`

// chunkSize bounds the titles sent in one prompt. Larger clusters are named
// chunk by chunk and the partial names are named again.
const chunkSize = 40

// LLMNamer asks the language model for a name. Unusable answers fall back
// to the keyword name.
type LLMNamer struct {
	LLM      llm.LLMClient
	Prompt   string
	Fallback Namer
	logger   *zap.Logger
}

func NewLLMNamer(client llm.LLMClient, prompt string, logger *zap.Logger) *LLMNamer {
	if prompt == "" {
		prompt = defaultClusterNamePrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMNamer{LLM: client, Prompt: prompt, Fallback: KeywordNamer{}, logger: logger}
}

func (n *LLMNamer) Name(ctx context.Context, cluster model.Cluster) (string, error) {
	name, err := n.nameTitles(ctx, cluster.Titles)
	if err != nil {
		return "", err
	}
	if name == "" {
		return n.Fallback.Name(ctx, cluster)
	}
	return name, nil
}

func (n *LLMNamer) nameTitles(ctx context.Context, titles []string) (string, error) {
	if len(titles) <= chunkSize {
		return n.ask(ctx, titles)
	}

	var partial []string
	for i := 0; i < len(titles); i += chunkSize {
		end := i + chunkSize
		if end > len(titles) {
			end = len(titles)
		}
		name, err := n.ask(ctx, titles[i:end])
		if err != nil {
			return "", err
		}
		if name != "" {
			partial = append(partial, name)
		}
	}
	if len(partial) == 0 {
		return "", nil
	}
	return n.nameTitles(ctx, partial)
}

func (n *LLMNamer) ask(ctx context.Context, titles []string) (string, error) {
	var list strings.Builder
	for _, t := range titles {
		if t = strings.TrimSpace(t); t != "" {
			fmt.Fprintf(&list, "- %s\n", t)
		}
	}
	if list.Len() == 0 {
		return "", nil
	}

	response, err := n.LLM.Generate(ctx, fmt.Sprintf(n.Prompt, list.String()))
	if err != nil {
		return "", fmt.Errorf("failed to generate cluster name: %w", err)
	}
	result, err := common.ParseJSON[model.ClusterName](response)
	if err != nil {
		n.logger.Warn("unparseable cluster name", zap.Error(err))
		return "", nil
	}
	return strings.TrimSpace(result.Name), nil
}

// New returns the namer for the configured strategy.
func New(strategy string, client llm.LLMClient, prompt string, logger *zap.Logger) (Namer, error) {
	switch strategy {
	case "", "keywords":
		return KeywordNamer{}, nil
	case "llm":
		if client == nil {
			return nil, fmt.Errorf("llm cluster naming requires an llm client")
		}
		return NewLLMNamer(client, prompt, logger), nil
	default:
		return nil, fmt.Errorf("unknown cluster naming %q", strategy)
	}
}
