package pipeline

import (
	"context"
	"math"

	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// InheritanceStage copies the base model's specification map into the
// context verbatim.
type InheritanceStage struct {
	vocab         *vocab.Vocabulary
	maxEnrichment float64
}

func (s *InheritanceStage) ID() model.StageID { return model.StageSpecificationInheritance }

func (s *InheritanceStage) Execute(_ context.Context, pc *Context) (model.StageResult, error) {
	base := pc.BaseModel
	if base == nil {
		return model.StageResult{}, fail(model.ErrorKindStageFailure,
			"no base model to inherit from", "run base-model matching first", false)
	}

	pc.Specs = base.Specifications.Clone()
	groups := pc.Specs.Groups()
	pc.Record(model.ActionSpecsInherited, nil, map[string]any{
		"base_model_id": base.ID,
		"groups":        groups,
		"fields":        pc.Specs.FieldCount(),
	})

	present := 0
	for _, g := range s.vocab.RequiredGroups {
		if len(pc.Specs[g]) > 0 {
			present++
		}
	}
	res := model.StageResult{
		Confidence: Unset,
		Present:    present,
		Required:   len(s.vocab.RequiredGroups),
		Payload: model.InheritancePayload{
			BaseModelID:     base.ID,
			GroupsInherited: groups,
			FieldsInherited: pc.Specs.FieldCount(),
		},
	}
	if base.ExtractionQuality > 0 {
		res.Confidence = base.ExtractionQuality
	}
	if base.Source == model.SourceEnrichment {
		c := res.Confidence
		if c == Unset {
			c = Interpolate(present, res.Required)
		}
		res.Confidence = math.Min(c, s.maxEnrichment)
	}
	if present < res.Required {
		res.Warnings = append(res.Warnings, "base model is missing required specification groups")
	}
	return res, nil
}
