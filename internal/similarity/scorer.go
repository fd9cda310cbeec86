// Package similarity scores how alike two short product descriptions are.
// Scores are always in [0,1] and identical non-empty inputs score 1.
package similarity

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// Strategy names.
const (
	StrategyLexical  = "lexical"
	StrategySemantic = "semantic"
)

// Scorer compares two texts. Scores are in [0, 1]; identical non-empty
// inputs score 1 even when they are only whitespace.
type Scorer interface {
	Score(ctx context.Context, a, b string) float64
	Strategy() string
}

// Domain boost weights.
const (
	familyBoost   = 0.10
	keywordBoost  = 0.05
	maxBoost      = 0.20
	probeText     = "RENEGADE X 850 E-TEC"
	shortPenalty  = 0.8
	shortFraction = 0.5
)

// New picks the scoring strategy once. The semantic scorer is used only when
// embedder is non-nil and answers a probe request; otherwise the lexical
// scorer is returned.
func New(ctx context.Context, embedder Embedder, v *vocab.Vocabulary) Scorer {
	lex := NewLexical(v)
	if embedder == nil {
		zap.L().Info("similarity: no embedder configured, using lexical scorer")
		return lex
	}
	if _, err := embedder.Embed(ctx, probeText); err != nil {
		zap.L().Warn("similarity: embedding probe failed, using lexical scorer", zap.Error(err))
		return lex
	}
	return NewSemantic(embedder, v)
}

// DomainBoost returns the bonus for shared model family, engine keywords and
// package keywords, capped at 0.2.
func DomainBoost(v *vocab.Vocabulary, a, b string) float64 {
	boost := 0.0
	if v.SameFamily(a, b) {
		boost += familyBoost
	}
	boost += keywordBoost * float64(v.SharedEngineKeywords(a, b))
	boost += keywordBoost * float64(v.SharedPackageKeywords(a, b))
	if boost > maxBoost {
		boost = maxBoost
	}
	return boost
}

func clamp(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

func canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
