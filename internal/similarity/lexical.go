package similarity

import (
	"context"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// Lexical blends a character sequence ratio with token-set overlap.
type Lexical struct {
	vocab *vocab.Vocabulary
}

// NewLexical returns a lexical scorer using v for the domain boost.
func NewLexical(v *vocab.Vocabulary) *Lexical {
	return &Lexical{vocab: v}
}

func (l *Lexical) Strategy() string { return StrategyLexical }

// Score implements Scorer.
func (l *Lexical) Score(_ context.Context, a, b string) float64 {
	if a == b && a != "" {
		return 1
	}
	a, b = canonical(a), canonical(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return clamp(l.base(a, b) + DomainBoost(l.vocab, a, b))
}

// base is the unboosted score of two canonical, non-empty strings.
func (l *Lexical) base(a, b string) float64 {
	ratio := difflib.NewMatcher(chars(a), chars(b)).Ratio()
	score := 0.5*ratio + 0.5*jaccard(strings.Fields(a), strings.Fields(b))

	short, long := len([]rune(a)), len([]rune(b))
	if short > long {
		short, long = long, short
	}
	if float64(short) < shortFraction*float64(long) {
		score *= shortPenalty
	}
	return score
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func jaccard(a, b []string) float64 {
	set := make(map[string]uint8, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	if len(set) == 0 {
		return 0
	}
	both := 0
	for _, m := range set {
		if m == 3 {
			both++
		}
	}
	return float64(both) / float64(len(set))
}
