package pipeline

import (
	"context"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/catalog"
	"github.com/sells-group/pricelist-cli/internal/enrich"
	"github.com/sells-group/pricelist-cli/internal/match"
	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/resilience"
	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// MatchingStage finds the base model for the line, falling back to the
// enrichment collaborator when enabled and no tier accepts.
type MatchingStage struct {
	repo          catalog.Repository
	engine        *match.Engine
	enricher      enrich.Enricher
	vocab         *vocab.Vocabulary
	maxEnrichment float64
}

func (s *MatchingStage) ID() model.StageID { return model.StageBaseModelMatching }

func (s *MatchingStage) Execute(ctx context.Context, pc *Context) (model.StageResult, error) {
	e := pc.Entry
	candidates, err := s.repo.FindByBrandAndYear(ctx, e.Brand, e.ModelYear)
	if err != nil {
		return model.StageResult{}, fail(model.ErrorKindStageFailure, err.Error(),
			"check catalog connectivity and retry", true)
	}

	base, res := s.engine.Match(ctx, e, candidates)
	pc.Matching = res
	payload := model.MatchingPayload{Matching: res, Candidates: len(candidates)}

	if base != nil {
		pc.BaseModel = base
		payload.BaseModelID = base.ID
		payload.Source = model.SourceCatalog
		pc.Record(model.ActionBaseModelMatched, nil, map[string]any{
			"base_model_id": base.ID,
			"model_name":    base.ModelName,
			"method":        string(res.FinalMethod),
			"confidence":    res.OverallConfidence,
		})
		return model.StageResult{Confidence: res.OverallConfidence, Payload: payload}, nil
	}

	hint := "add the base model to the catalog or enable enrichment fallback"
	if closest := s.closestRanked(ctx, e); closest != "" {
		payload.ClosestRanked = closest
		hint += "; closest ranked catalog entry: " + closest
	}

	if !pc.Options.EnableEnrichment || s.enricher == nil {
		return model.StageResult{Payload: payload}, fail(model.ErrorKindMatching,
			"no catalog candidate cleared its tier threshold", hint, false)
	}

	out, err := s.enricher.Enrich(ctx, enrich.Request{
		ModelCode: e.ModelCode,
		Brand:     e.Brand,
		ModelYear: e.ModelYear,
		Price:     e.Price,
	})
	if err != nil {
		return model.StageResult{Payload: payload}, fail(model.ErrorKindStageFailure,
			"enrichment fallback failed: "+err.Error(),
			"retry later or add the base model to the catalog", resilience.IsTransient(err))
	}

	synthetic := &model.BaseModelSpecification{
		ID:                "enr-" + uuid.NewString(),
		ModelName:         out.ModelName,
		Brand:             e.Brand,
		ModelYear:         e.ModelYear,
		Category:          out.Category,
		Specifications:    out.Specifications,
		ExtractionQuality: s.maxEnrichment,
		Source:            model.SourceEnrichment,
	}
	pc.BaseModel = synthetic
	payload.BaseModelID = synthetic.ID
	payload.Source = model.SourceEnrichment
	payload.EnrichmentUsed = true
	pc.Record(model.ActionBaseModelEnriched, nil, map[string]any{
		"base_model_id": synthetic.ID,
		"model_name":    synthetic.ModelName,
		"category":      synthetic.Category,
		"cost_usd":      out.Usage.CostUSD,
	})

	return model.StageResult{
		Confidence: math.Min(s.maxEnrichment, s.enrichmentConfidence(out)),
		Usage:      out.Usage,
		Payload:    payload,
		Warnings:   []string{"base model synthesized by enrichment; review recommended"},
	}, nil
}

// closestRanked asks the repository for its best ranked candidate by model
// code and price. Lookup errors only cost the hint.
func (s *MatchingStage) closestRanked(ctx context.Context, e model.PriceListEntry) string {
	price := e.Price
	best, err := s.repo.FindBestMatch(ctx, e.Brand, e.ModelCode, e.ModelYear, &price)
	if err != nil {
		zap.L().Debug("pipeline: ranked lookup failed", zap.String("model_code", e.ModelCode), zap.Error(err))
		return ""
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// enrichmentConfidence grows with the share of required spec groups the
// reply filled.
func (s *MatchingStage) enrichmentConfidence(out *enrich.Result) float64 {
	present := 0
	for _, g := range s.vocab.RequiredGroups {
		if len(out.Specifications[g]) > 0 {
			present++
		}
	}
	return Interpolate(present, len(s.vocab.RequiredGroups))
}
