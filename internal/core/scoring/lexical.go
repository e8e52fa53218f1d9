package scoring

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/agenthands/notegraph/internal/core/model"
)

// Opposition weights of the three lexical signals.
const (
	antonymWeight     = 0.9
	negationWeight    = 0.8
	exclusivityWeight = 0.7
)

var stopwords = toSet(
	"a", "an", "the", "is", "are", "was", "were", "be", "been", "being", "am",
	"and", "or", "but", "so", "if", "then", "than", "of", "to", "in", "on", "at",
	"by", "for", "with", "as", "from", "into", "about", "over", "under", "it",
	"its", "this", "that", "these", "those", "there", "their", "they", "them",
	"we", "our", "us", "i", "me", "my", "you", "your", "he", "she", "his", "her",
	"do", "does", "did", "have", "has", "had", "will", "would", "can", "could",
	"should", "may", "might", "shall", "also", "very", "just", "really", "quite",
	"which", "who", "whom", "what", "when", "where", "why", "how", "all", "any",
	"some", "such", "both", "each", "other", "own", "same", "too", "much", "many",
	"one", "way", "thing", "things", "get", "gets", "make", "makes",
)

var negations = toSet(
	"not", "no", "never", "none", "nothing", "nobody", "neither", "nor",
	"cannot", "without", "hardly", "rarely",
)

// Exclusive and superlative markers: two claims asserting them about
// different subjects on the same topic compete.
var exclusives = toSet(
	"only", "best", "sole", "solely", "exclusively", "must", "always", "never",
	"greatest", "ultimate", "single", "unique", "superior", "optimal",
)

var antonyms = buildAntonyms([][2]string{
	{"increase", "decrease"}, {"rise", "fall"}, {"grow", "shrink"},
	{"true", "false"}, {"safe", "dangerous"}, {"safe", "unsafe"},
	{"good", "bad"}, {"better", "worse"}, {"best", "worst"},
	{"cheap", "expensive"}, {"high", "low"}, {"more", "less"},
	{"support", "oppose"}, {"effective", "ineffective"},
	{"possible", "impossible"}, {"viable", "unviable"},
	{"healthy", "unhealthy"}, {"agree", "disagree"}, {"allow", "forbid"},
	{"accept", "reject"}, {"include", "exclude"}, {"success", "failure"},
	{"win", "lose"}, {"love", "hate"}, {"strong", "weak"}, {"fast", "slow"},
	{"clean", "dirty"}, {"renewable", "finite"}, {"legal", "illegal"},
	{"efficient", "inefficient"}, {"sustainable", "unsustainable"},
	{"benefit", "harm"}, {"help", "hurt"}, {"gain", "loss"},
	{"correct", "incorrect"}, {"valid", "invalid"}, {"easy", "hard"},
	{"easy", "difficult"}, {"always", "never"}, {"everyone", "nobody"},
})

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func buildAntonyms(pairs [][2]string) map[string][]string {
	out := make(map[string][]string, len(pairs)*2)
	for _, p := range pairs {
		out[p[0]] = append(out[p[0]], p[1])
		out[p[1]] = append(out[p[1]], p[0])
	}
	return out
}

// LexicalScorer is an offline heuristic. Topic similarity is the overlap
// coefficient of content-word stems; opposition is the strongest of
// antonym pairs, a negation mismatch and competing exclusive assertions.
type LexicalScorer struct{}

func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// analysis is the lexical profile of one claim.
type analysis struct {
	content   map[string]struct{}
	words     map[string]struct{}
	negated   bool
	exclusive bool
}

func analyze(text string) analysis {
	a := analysis{content: map[string]struct{}{}, words: map[string]struct{}{}}
	for _, tok := range tokenize(text) {
		if strings.HasSuffix(tok, "n't") {
			a.negated = true
			continue
		}
		if _, ok := negations[tok]; ok {
			a.negated = true
		}
		if _, ok := exclusives[tok]; ok {
			a.exclusive = true
		}
		stem := Stem(tok)
		a.words[tok] = struct{}{}
		a.words[stem] = struct{}{}
		if isMarker(tok) {
			continue
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		a.content[stem] = struct{}{}
	}
	return a
}

func isMarker(tok string) bool {
	_, neg := negations[tok]
	_, excl := exclusives[tok]
	return neg || excl
}

func tokenize(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "’", "'")
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Stem strips possessives and common English plural endings.
func Stem(word string) string {
	word = strings.Trim(strings.TrimSuffix(word, "'s"), "'")
	switch {
	case len(word) > 4 && strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case len(word) > 3 && strings.HasSuffix(word, "s") &&
		!strings.HasSuffix(word, "ss") && !strings.HasSuffix(word, "us") && !strings.HasSuffix(word, "is"):
		return word[:len(word)-1]
	}
	return word
}

// overlap is |A∩B| / min(|A|,|B|).
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(shared) / float64(smaller)
}

func difference(a, b map[string]struct{}) []string {
	var out []string
	for w := range a {
		if _, ok := b[w]; !ok {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

func (s *LexicalScorer) Score(_ context.Context, a, b model.Claim) (model.PairScore, error) {
	pa, pb := analyze(a.Text), analyze(b.Text)
	score := model.PairScore{Topic: overlap(pa.content, pb.content)}

	if pair, ok := antonymPair(pa.words, pb.words); ok {
		score.Opposition = antonymWeight
		score.Explanation = fmt.Sprintf("opposite terms %q and %q", pair[0], pair[1])
	}

	if pa.negated != pb.negated && score.Opposition < negationWeight {
		score.Opposition = negationWeight
		score.Explanation = "one claim negates the other"
	}

	if pa.exclusive && pb.exclusive && score.Opposition < exclusivityWeight {
		onlyA := difference(pa.content, pb.content)
		onlyB := difference(pb.content, pa.content)
		if len(onlyA) > 0 && len(onlyB) > 0 {
			score.Opposition = exclusivityWeight
			score.Explanation = fmt.Sprintf("competing exclusive claims about %s versus %s",
				strings.Join(onlyA, " "), strings.Join(onlyB, " "))
		}
	}
	return score, nil
}

// antonymPair finds a word of a whose antonym appears in b but not in a.
func antonymPair(a, b map[string]struct{}) ([2]string, bool) {
	words := make([]string, 0, len(a))
	for w := range a {
		words = append(words, w)
	}
	sort.Strings(words)
	for _, w := range words {
		for _, opp := range antonyms[w] {
			_, inB := b[opp]
			_, inA := a[opp]
			_, wInB := b[w]
			if inB && !inA && !wInB {
				return [2]string{w, opp}, true
			}
		}
	}
	return [2]string{}, false
}
