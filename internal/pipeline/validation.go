package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// ValidationStage checks the assembled line, computes the overall confidence
// and builds the product.
type ValidationStage struct {
	vocab    *vocab.Vocabulary
	weights  Weights
	maxPrice float64
}

func (s *ValidationStage) ID() model.StageID { return model.StageFinalValidation }

func (s *ValidationStage) Execute(_ context.Context, pc *Context) (model.StageResult, error) {
	identity := s.identityChecks(pc.Entry)
	var problems []string
	for _, c := range identity {
		if !c.Passed {
			problems = append(problems, c.Name+": "+c.Detail)
		}
	}
	if len(problems) > 0 {
		return model.StageResult{}, fail(model.ErrorKindValidation,
			strings.Join(problems, "; "), "fix the price-list line and resubmit", false)
	}
	if pc.BaseModel == nil {
		return model.StageResult{}, fail(model.ErrorKindStageFailure,
			"no base model", "run base model matching first", false)
	}

	checks := append(identity, s.completenessChecks(pc.Specs)...)
	passed := 0
	var warnings []string
	for _, c := range checks {
		if c.Passed {
			passed++
		} else {
			warnings = append(warnings, c.Name+": "+c.Detail)
		}
	}
	c5 := Interpolate(passed, len(checks))

	conf := pc.stageConfidences()
	conf[stageIndex(model.StageFinalValidation)] = c5
	overall := clampConfidence(s.weights.Aggregate(conf))
	level := model.LevelFor(overall)

	requiresReview := overall < pc.Options.AutoApproveThreshold || pc.Matching.RequiresHumanReview
	status := model.ReviewAutoApproved
	if requiresReview {
		status = model.ReviewPending
	}

	pc.Product = &model.ProductSpecification{
		ID:                pc.ProductID,
		LineIndex:         pc.Entry.LineIndex,
		ModelCode:         pc.Entry.ModelCode,
		BaseModelID:       pc.BaseModel.ID,
		Brand:             pc.Entry.Brand,
		ModelName:         productName(pc.Entry, pc.BaseModel),
		ModelYear:         pc.Entry.ModelYear,
		Price:             pc.Entry.Price,
		Currency:          pc.Entry.Currency,
		Specifications:    pc.Specs,
		SpringOptions:     pc.SpringOptions,
		Matching:          pc.Matching,
		OverallConfidence: overall,
		ConfidenceLevel:   level,
		RequiresReview:    requiresReview,
		ReviewStatus:      status,
		CreatedAt:         pc.now().UTC(),
	}
	pc.Record(model.ActionProductValidated, nil, map[string]any{
		"overall_confidence": overall,
		"confidence_level":   string(level),
		"review_status":      string(status),
	})

	return model.StageResult{
		Confidence: c5,
		Warnings:   warnings,
		Payload: model.ValidationPayload{
			Checks:            checks,
			OverallConfidence: overall,
			ConfidenceLevel:   level,
		},
	}, nil
}

func (s *ValidationStage) identityChecks(e model.PriceListEntry) []model.ValidationCheck {
	price := model.ValidationCheck{Name: "price", Passed: e.Price > 0 && (s.maxPrice <= 0 || e.Price <= s.maxPrice)}
	if !price.Passed {
		price.Detail = fmt.Sprintf("%.2f outside (0, %.2f]", e.Price, s.maxPrice)
	}
	return []model.ValidationCheck{
		check("model_code", strings.TrimSpace(e.ModelCode) != "", "missing"),
		check("brand", strings.TrimSpace(e.Brand) != "", "missing"),
		price,
		check("model_year", e.ModelYear > 0, "missing"),
	}
}

func (s *ValidationStage) completenessChecks(specs model.SpecMap) []model.ValidationCheck {
	out := []model.ValidationCheck{check("specifications", specs.FieldCount() > 0, "empty")}
	for _, g := range s.vocab.RequiredGroups {
		out = append(out, check("group:"+g, len(specs[g]) > 0, "missing"))
	}
	return out
}

func check(name string, ok bool, detail string) model.ValidationCheck {
	c := model.ValidationCheck{Name: name, Passed: ok}
	if !ok {
		c.Detail = detail
	}
	return c
}

func productName(e model.PriceListEntry, base *model.BaseModelSpecification) string {
	if m := strings.TrimSpace(e.Model); m != "" {
		return m
	}
	return base.ModelName
}
