package match

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/similarity"
	"github.com/sells-group/pricelist-cli/internal/vocab"
)

type countingScorer struct {
	inner similarity.Scorer
	calls atomic.Int32
}

func (c *countingScorer) Score(ctx context.Context, a, b string) float64 {
	c.calls.Add(1)
	return c.inner.Score(ctx, a, b)
}

func (c *countingScorer) Strategy() string { return c.inner.Strategy() }

type fixedScorer float64

func (f fixedScorer) Score(context.Context, string, string) float64 { return float64(f) }
func (fixedScorer) Strategy() string                                { return "fixed" }

func newCountingEngine() (*Engine, *countingScorer, *countingScorer) {
	v := vocab.Default()
	sem := &countingScorer{inner: similarity.NewLexical(v)}
	lex := &countingScorer{inner: similarity.NewLexical(v)}
	return NewEngine(sem, v, DefaultThresholds()).WithLexical(lex), sem, lex
}

func candidates() []model.BaseModelSpecification {
	return []model.BaseModelSpecification{
		{ID: "bm-1", ModelName: "Renegade 850", Brand: "Ski-Doo", ModelYear: 2024},
		{ID: "bm-2", ModelName: "Summit X 850", Brand: "Ski-Doo", ModelYear: 2024},
		{ID: "bm-3", ModelName: "MXZ Sport 600 EFI", Brand: "Ski-Doo", ModelYear: 2024},
	}
}

func TestMatch_ExactShortCircuits(t *testing.T) {
	e, sem, lex := newCountingEngine()

	got, res := e.Match(context.Background(), model.PriceListEntry{ModelCode: "SUMMIT_X_850", Model: "summit x 850"}, candidates())
	require.NotNil(t, got)
	assert.Equal(t, "bm-2", got.ID)
	assert.Equal(t, model.MatchExact, res.FinalMethod)
	assert.Equal(t, 1.0, res.OverallConfidence)
	assert.False(t, res.RequiresHumanReview)

	assert.Zero(t, sem.calls.Load())
	assert.Zero(t, lex.calls.Load())
	require.Len(t, res.Tiers, 3)
	assert.True(t, res.Tiers[0].Executed)
	assert.False(t, res.Tiers[1].Executed)
	assert.False(t, res.Tiers[2].Executed)
}

func TestMatch_ExactContainedScore(t *testing.T) {
	e, _, _ := newCountingEngine()

	_, res := e.Match(context.Background(), model.PriceListEntry{ModelCode: "X_850", Model: "x 850"}, candidates())
	tier1, ok := res.Tier(1)
	require.True(t, ok)
	// "X 850" (5) inside "SUMMIT X 850" (12)
	assert.InDelta(t, 0.9+0.1*5.0/12.0, tier1.Confidence, 1e-9)
	assert.Equal(t, "bm-2", tier1.CandidateID)
	assert.False(t, tier1.Accepted)
}

func TestMatch_SemanticTier(t *testing.T) {
	e, sem, lex := newCountingEngine()

	got, res := e.Match(context.Background(), model.PriceListEntry{ModelCode: "RENEGADE_X_850", Brand: "Ski-Doo", ModelYear: 2024}, candidates())
	require.NotNil(t, got)
	assert.Equal(t, "bm-1", got.ID)
	assert.Equal(t, model.MatchSemantic, res.FinalMethod)
	assert.GreaterOrEqual(t, res.OverallConfidence, 0.80)

	tier2, _ := res.Tier(2)
	assert.True(t, tier2.Accepted)
	assert.Equal(t, tier2.Confidence, res.OverallConfidence)
	assert.Equal(t, int32(3), sem.calls.Load())
	assert.Zero(t, lex.calls.Load())
	tier3, _ := res.Tier(3)
	assert.False(t, tier3.Executed)
}

func TestMatch_CrossFamilyPenalty(t *testing.T) {
	v := vocab.Default()
	e := NewEngine(fixedScorer(0.9), v, DefaultThresholds()).WithLexical(fixedScorer(0.9))

	got, res := e.Match(context.Background(), model.PriceListEntry{ModelCode: "TUNDRA_LT_600"}, candidates())
	assert.Nil(t, got)
	tier2, _ := res.Tier(2)
	assert.InDelta(t, 0.9*0.8, tier2.Confidence, 1e-9)
	tier3, _ := res.Tier(3)
	assert.InDelta(t, 0.9*0.3, tier3.Confidence, 1e-9)
}

func TestMatch_NoneRequiresReview(t *testing.T) {
	e, _, lex := newCountingEngine()

	got, res := e.Match(context.Background(), model.PriceListEntry{ModelCode: "CATALYST_9000"}, candidates())
	assert.Nil(t, got)
	assert.Equal(t, model.MatchNone, res.FinalMethod)
	assert.Zero(t, res.OverallConfidence)
	assert.Empty(t, res.MatchedID)
	assert.True(t, res.RequiresHumanReview)
	assert.Equal(t, int32(3), lex.calls.Load())
	for _, tr := range res.Tiers {
		assert.True(t, tr.Executed)
		assert.False(t, tr.Accepted)
	}
}

func TestMatch_NoCandidates(t *testing.T) {
	e, _, _ := newCountingEngine()

	got, res := e.Match(context.Background(), model.PriceListEntry{ModelCode: "RENEGADE_X_850"}, nil)
	assert.Nil(t, got)
	assert.Equal(t, model.MatchNone, res.FinalMethod)
	assert.True(t, res.RequiresHumanReview)
}

func TestMatch_TieKeepsFirstCandidate(t *testing.T) {
	e := NewEngine(fixedScorer(0.85), vocab.Default(), DefaultThresholds())
	cands := []model.BaseModelSpecification{
		{ID: "bm-a", ModelName: "Renegade Sport 600"},
		{ID: "bm-b", ModelName: "Renegade Enduro 900"},
	}

	got, res := e.Match(context.Background(), model.PriceListEntry{ModelCode: "RENEGADE_X"}, cands)
	require.NotNil(t, got)
	assert.Equal(t, "bm-a", got.ID)
	assert.Equal(t, model.MatchSemantic, res.FinalMethod)
	assert.True(t, res.RequiresHumanReview, "0.85 is below auto-accept")
}

func TestMatch_ConfigurableThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.Semantic = 0.99
	th.Fuzzy = 0.99
	e := NewEngine(fixedScorer(0.95), vocab.Default(), th).WithLexical(fixedScorer(0.95))

	got, res := e.Match(context.Background(), model.PriceListEntry{ModelCode: "RENEGADE_X"}, candidates())
	assert.Nil(t, got)
	assert.Equal(t, model.MatchNone, res.FinalMethod)
	assert.Equal(t, th, e.Thresholds())
}
