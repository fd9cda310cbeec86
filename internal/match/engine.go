// Package match implements the three-tier base-model matching protocol:
// exact, then semantic over normalized text, then lexical fuzzy fallback.
// A later tier runs only when every earlier tier failed to accept.
package match

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/normalize"
	"github.com/sells-group/pricelist-cli/internal/similarity"
	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// Thresholds configures tier acceptance and review routing.
type Thresholds struct {
	Exact      float64 `mapstructure:"exact_threshold"`
	Semantic   float64 `mapstructure:"semantic_threshold"`
	Fuzzy      float64 `mapstructure:"fuzzy_threshold"`
	AutoAccept float64 `mapstructure:"auto_accept_threshold"`
}

// DefaultThresholds returns the stock acceptance thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Exact: 0.95, Semantic: 0.80, Fuzzy: 0.60, AutoAccept: 0.90}
}

// Cross-family penalties.
const (
	semanticFamilyPenalty = 0.8
	fuzzyFamilyPenalty    = 0.3
)

// Engine matches price-list entries against catalog candidates.
type Engine struct {
	semantic   similarity.Scorer
	lexical    similarity.Scorer
	normalizer *normalize.Normalizer
	vocab      *vocab.Vocabulary
	thresholds Thresholds
}

// NewEngine builds an engine. semantic is used by tier 2; tier 3 always
// scores lexically.
func NewEngine(semantic similarity.Scorer, v *vocab.Vocabulary, t Thresholds) *Engine {
	return &Engine{
		semantic:   semantic,
		lexical:    similarity.NewLexical(v),
		normalizer: normalize.New(v),
		vocab:      v,
		thresholds: t,
	}
}

// WithLexical overrides the tier-3 scorer.
func (e *Engine) WithLexical(s similarity.Scorer) *Engine {
	e.lexical = s
	return e
}

// Thresholds returns the engine's configured thresholds.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

type tierFunc func(ctx context.Context, entry model.PriceListEntry, candidates []model.BaseModelSpecification) (int, float64)

// Match runs the tiers in order over candidates, which must already be
// restricted to the entry's brand and year and be in catalog order.
func (e *Engine) Match(ctx context.Context, entry model.PriceListEntry, candidates []model.BaseModelSpecification) (*model.BaseModelSpecification, model.MatchingResult) {
	tiers := []struct {
		method    model.MatchMethod
		threshold float64
		run       tierFunc
	}{
		{model.MatchExact, e.thresholds.Exact, e.exact},
		{model.MatchSemantic, e.thresholds.Semantic, e.semanticTier},
		{model.MatchFuzzy, e.thresholds.Fuzzy, e.fuzzy},
	}

	result := model.MatchingResult{FinalMethod: model.MatchNone, Tiers: make([]model.TierResult, 0, len(tiers))}
	var matched *model.BaseModelSpecification
	for i, tier := range tiers {
		tr := model.TierResult{Tier: i + 1, Method: tier.method, Threshold: tier.threshold}
		if matched == nil {
			tr.Executed = true
			tr.CandidatesScored = len(candidates)
			idx, score := tier.run(ctx, entry, candidates)
			tr.Confidence = score
			if idx >= 0 {
				tr.CandidateID = candidates[idx].ID
				if score >= tier.threshold {
					tr.Accepted = true
					m := candidates[idx]
					matched = &m
					result.FinalMethod = tier.method
					result.OverallConfidence = score
					result.MatchedID = m.ID
				}
			}
		}
		result.Tiers = append(result.Tiers, tr)
	}
	result.RequiresHumanReview = matched == nil || result.OverallConfidence < e.thresholds.AutoAccept

	zap.L().Debug("match: line matched",
		zap.String("model_code", entry.ModelCode),
		zap.String("method", string(result.FinalMethod)),
		zap.String("base_model_id", result.MatchedID),
		zap.Float64("confidence", result.OverallConfidence),
	)
	return matched, result
}

// exact accepts an entry whose model text equals (1.0) or is contained in
// (0.90 + 0.10 x length ratio) a candidate's display name.
func (e *Engine) exact(_ context.Context, entry model.PriceListEntry, candidates []model.BaseModelSpecification) (int, float64) {
	text := strings.ToUpper(strings.Join(strings.Fields(entry.ModelText()), " "))
	if text == "" {
		return -1, 0
	}
	bestIdx, best := -1, 0.0
	for i, c := range candidates {
		name := strings.ToUpper(strings.Join(strings.Fields(c.ModelName), " "))
		var score float64
		switch {
		case name == "":
			continue
		case text == name:
			score = 1
		case strings.Contains(name, text):
			score = 0.9 + 0.1*float64(len(text))/float64(len(name))
		default:
			continue
		}
		if score > best {
			bestIdx, best = i, score
		}
	}
	return bestIdx, best
}

func (e *Engine) semanticTier(ctx context.Context, entry model.PriceListEntry, candidates []model.BaseModelSpecification) (int, float64) {
	text := e.entryText(entry)
	return e.bestBy(candidates, func(c model.BaseModelSpecification) float64 {
		name := e.normalizer.ModelName(c.ModelName)
		score := e.semantic.Score(ctx, text, name)
		if !e.vocab.SameFamily(text, name) {
			score *= semanticFamilyPenalty
		}
		return score
	})
}

func (e *Engine) fuzzy(ctx context.Context, entry model.PriceListEntry, candidates []model.BaseModelSpecification) (int, float64) {
	text := strings.ToUpper(entry.ModelText() + " " + entry.Package)
	return e.bestBy(candidates, func(c model.BaseModelSpecification) float64 {
		name := strings.ToUpper(c.ModelName)
		score := e.lexical.Score(ctx, text, name)
		if !e.vocab.SameFamily(text, name) {
			score *= fuzzyFamilyPenalty
		}
		return score
	})
}

// entryText is the normalized "model + package" text scored by tier 2.
func (e *Engine) entryText(entry model.PriceListEntry) string {
	text := e.normalizer.ModelName(entry.ModelText())
	if pkg := e.normalizer.PackageName(entry.Package); pkg != "" && !vocab.ContainsPhrase(text, pkg) {
		text += " " + pkg
	}
	return text
}

// bestBy returns the index and score of the highest scoring candidate. Ties
// keep the earlier candidate.
func (e *Engine) bestBy(candidates []model.BaseModelSpecification, score func(model.BaseModelSpecification) float64) (int, float64) {
	bestIdx, best := -1, 0.0
	for i, c := range candidates {
		s := score(c)
		if bestIdx < 0 || s > best {
			bestIdx, best = i, s
		}
	}
	return bestIdx, best
}
