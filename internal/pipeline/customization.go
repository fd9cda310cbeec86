package pipeline

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/normalize"
	"github.com/sells-group/pricelist-cli/internal/vocab"
)

var (
	displacementRe = regexp.MustCompile(`\b(\d{3}|1\d{3})(?:R|CC)?\b`)
	trackRe        = regexp.MustCompile(`(\d{3})\s*(?:IN\b|")?\s*[X×]\s*(\d(?:\.\d+)?)`)
)

// Displacements within this many cc are the same engine; brochures round.
const displacementTolerance = 10

// coreDerivations is the number of fields every line is expected to yield:
// displacement, fuel system, model line and package.
const coreDerivations = 4

// CustomizationStage derives fields implied by the price-list text and
// merges them over the inherited specification. Price-list values win.
type CustomizationStage struct {
	vocab *vocab.Vocabulary
	norm  *normalize.Normalizer
}

func (s *CustomizationStage) ID() model.StageID { return model.StageCustomizationProcessing }

type derivation struct {
	group, key string
	value      any
	core       bool
}

func (s *CustomizationStage) Execute(_ context.Context, pc *Context) (model.StageResult, error) {
	if pc.Specs == nil {
		return model.StageResult{}, fail(model.ErrorKindStageFailure,
			"no inherited specification", "run specification inheritance first", false)
	}

	derived := s.derive(pc.Entry)
	payload := model.CustomizationPayload{Derived: make(map[string]any, len(derived))}
	res := model.StageResult{Confidence: Unset, Required: coreDerivations}

	for _, d := range derived {
		if d.core {
			res.Present++
		}
		field := d.group + "." + d.key
		payload.Derived[field] = d.value

		prev, had := pc.Specs.Get(d.group, d.key)
		switch {
		case !had:
			pc.Specs.Set(d.group, d.key, d.value)
			pc.Record(model.ActionFieldDerived, nil, map[string]any{field: d.value})
		case sameValue(d.key, prev, d.value):
		default:
			pc.Specs.Set(d.group, d.key, d.value)
			payload.Overrides = append(payload.Overrides, model.FieldOverride{
				Group: d.group, Key: d.key, Previous: prev, Value: d.value,
			})
			pc.Record(model.ActionFieldOverridden, map[string]any{field: prev}, map[string]any{field: d.value})
			res.Warnings = append(res.Warnings, fmt.Sprintf("price list overrides inherited %s (%v -> %v)", field, prev, d.value))
		}
	}
	res.Payload = payload
	return res, nil
}

// derive extracts every recognizable field from the entry's free text.
func (s *CustomizationStage) derive(e model.PriceListEntry) []derivation {
	modelText := s.norm.ModelName(e.ModelText())
	pkgText := s.norm.PackageName(e.Package)
	engineText := s.norm.EngineSpec(e.Engine)
	all := strings.Join(nonEmpty(modelText, pkgText, engineText), " ")

	var out []derivation
	if cc, ok := parseDisplacement(engineText); ok {
		out = append(out, derivation{"engine", "displacement_cc", cc, true})
	} else if cc, ok := parseDisplacement(modelText); ok {
		out = append(out, derivation{"engine", "displacement_cc", cc, true})
	}
	if fuel, ok := vocab.FirstValue(s.vocab.FuelSystems, all); ok {
		out = append(out, derivation{"engine", "fuel_system", fuel, true})
	}
	if line := s.vocab.Family(all); line != "" {
		out = append(out, derivation{"identity", "model_line", line, true})
	}
	if pkg := s.packageOf(pkgText, modelText); pkg != "" {
		out = append(out, derivation{"identity", "package", pkg, true})
	}
	if fi, ok := vocab.FirstValue(s.vocab.ForcedInduction, all); ok {
		out = append(out, derivation{"engine", "forced_induction", fi, false})
	}
	if t := strings.TrimSpace(e.Track); t != "" {
		upper := strings.ToUpper(t)
		out = append(out, derivation{"track", "description", upper, false})
		if m := trackRe.FindStringSubmatch(upper); m != nil {
			length, _ := strconv.ParseFloat(m[1], 64)
			lug, _ := strconv.ParseFloat(m[2], 64)
			out = append(out,
				derivation{"track", "length_in", length, false},
				derivation{"track", "lug_height_in", lug, false},
			)
		}
	}
	if starter := starterType(e.Starter); starter != "" {
		out = append(out, derivation{"features", "starter", starter, false})
	}
	if c := strings.TrimSpace(e.Color); c != "" {
		out = append(out, derivation{"identity", "color", strings.ToUpper(c), false})
	}
	return out
}

// packageOf prefers the explicit package field, then a package keyword
// carried in the model text.
func (s *CustomizationStage) packageOf(pkgText, modelText string) string {
	if pkgText != "" {
		return pkgText
	}
	best := ""
	for _, kw := range s.vocab.PackageKeywords {
		if vocab.ContainsPhrase(modelText, kw) && len(kw) > len(best) {
			best = strings.ToUpper(kw)
		}
	}
	return best
}

func parseDisplacement(text string) (float64, bool) {
	m := displacementRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	cc, err := strconv.ParseFloat(m[1], 64)
	return cc, err == nil
}

func starterType(s string) string {
	up := strings.ToUpper(s)
	switch {
	case up == "":
		return ""
	case strings.Contains(up, "ELECTRIC"), strings.Contains(up, "E-START"), strings.Contains(up, "SHOT"):
		return "electric"
	case strings.Contains(up, "MANUAL"), strings.Contains(up, "RECOIL"), strings.Contains(up, "PULL"):
		return "manual"
	}
	return ""
}

// sameValue compares an inherited value with a derived one. Displacements
// within tolerance, equal numbers and case-insensitively equal strings match.
func sameValue(key string, prev, next any) bool {
	if a, ok := toFloat(prev); ok {
		if b, ok := toFloat(next); ok {
			if key == "displacement_cc" {
				return math.Abs(a-b) <= displacementTolerance
			}
			return a == b
		}
	}
	return strings.EqualFold(fmt.Sprint(prev), fmt.Sprint(next))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
