package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/normalize"
	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// Detection methods recorded on spring options.
const (
	DetectedFromPriceList = "price_list_keyword"
	DetectedFromSpecs     = "specification_feature"
	DetectedFromColor     = "color_field"
)

const (
	// Options found only in inherited features are less certain than ones
	// the price list names.
	specFeatureDiscount = 0.9
	colorConfidence     = 0.7
	noOptionsConfidence = 0.8
)

// SpringOptionsStage detects seasonal and limited options from the entry
// text and the inherited feature group.
type SpringOptionsStage struct {
	vocab *vocab.Vocabulary
	norm  *normalize.Normalizer
}

func (s *SpringOptionsStage) ID() model.StageID { return model.StageSpringOptionsEnhancement }

func (s *SpringOptionsStage) Execute(_ context.Context, pc *Context) (model.StageResult, error) {
	entryText := s.entryText(pc.Entry)
	featureText := featureText(pc.Specs)

	seen := map[string]bool{}
	var found []model.SpringOption
	add := func(o model.SpringOption) {
		key := string(o.Type) + "|" + o.Description
		if seen[key] {
			return
		}
		seen[key] = true
		found = append(found, o)
		pc.Record(model.ActionSpringOptionAdded, nil, map[string]any{
			"type":             string(o.Type),
			"description":      o.Description,
			"detection_method": o.DetectionMethod,
		})
	}

	for _, rule := range s.vocab.OptionRules {
		if kw, ok := firstKeyword(rule.Keywords, entryText); ok {
			add(option(rule, kw, rule.Confidence, DetectedFromPriceList))
		}
	}
	for _, rule := range s.vocab.OptionRules {
		if kw, ok := firstKeyword(rule.Keywords, featureText); ok {
			add(option(rule, kw, rule.Confidence*specFeatureDiscount, DetectedFromSpecs))
		}
	}
	if c := strings.ToUpper(strings.TrimSpace(pc.Entry.Color)); c != "" && !baseMentions(pc.BaseModel, c) {
		add(model.SpringOption{
			Type:             model.OptionColorChange,
			Description:      "Color: " + c,
			TechnicalDetails: map[string]string{"color": c},
			Confidence:       colorConfidence,
			DetectionMethod:  DetectedFromColor,
		})
	}

	pc.SpringOptions = found
	res := model.StageResult{
		Confidence: noOptionsConfidence,
		Payload:    model.SpringOptionsPayload{Options: found},
	}
	if len(found) > 0 {
		sum := 0.0
		for _, o := range found {
			sum += o.Confidence
		}
		res.Confidence = sum / float64(len(found))
	}
	return res, nil
}

func (s *SpringOptionsStage) entryText(e model.PriceListEntry) string {
	parts := nonEmpty(
		s.norm.ModelName(e.ModelText()),
		s.norm.PackageName(e.Package),
		s.norm.EngineSpec(e.Engine),
		s.norm.ModelName(e.Track),
		s.norm.ModelName(e.Starter),
	)
	return strings.Join(parts, " ")
}

func option(rule vocab.OptionRule, keyword string, confidence float64, method string) model.SpringOption {
	details := map[string]string{"keyword": keyword}
	for k, v := range rule.Details {
		details[k] = v
	}
	return model.SpringOption{
		Type:             model.OptionType(rule.Type),
		Description:      rule.Description,
		TechnicalDetails: details,
		Confidence:       confidence,
		DetectionMethod:  method,
	}
}

// firstKeyword returns the longest keyword present in text so that
// "TURBO R" is reported over "TURBO".
func firstKeyword(keywords []string, text string) (string, bool) {
	best := ""
	for _, kw := range keywords {
		if vocab.ContainsPhrase(text, kw) && len(kw) > len(best) {
			best = kw
		}
	}
	return best, best != ""
}

// featureText flattens the features group: string values verbatim and
// true booleans by key name.
func featureText(specs model.SpecMap) string {
	fields := specs["features"]
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			parts = append(parts, v)
		case bool:
			if v {
				parts = append(parts, strings.ReplaceAll(k, "_", " "))
			}
		}
	}
	return strings.ToUpper(strings.Join(parts, " "))
}

// baseMentions reports whether any string in the base model's specification
// names the color.
func baseMentions(base *model.BaseModelSpecification, color string) bool {
	if base == nil {
		return false
	}
	for _, fields := range base.Specifications {
		for _, v := range fields {
			switch x := v.(type) {
			case string:
				if vocab.ContainsPhrase(x, color) {
					return true
				}
			case []any:
				for _, item := range x {
					if vocab.ContainsPhrase(fmt.Sprint(item), color) {
						return true
					}
				}
			}
		}
	}
	return false
}
