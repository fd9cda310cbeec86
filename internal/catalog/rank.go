package catalog

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/normalize"
	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// Ranking weights and cut-off.
const (
	WeightName         = 0.4
	WeightDisplacement = 0.3
	WeightCategory     = 0.2
	WeightPriceBand    = 0.1
	MinRankScore       = 0.5

	priceBand             = 0.2
	displacementTolerance = 10
)

var displacementRe = regexp.MustCompile(`\b(\d{3,4})R?\b`)

// Ranked is a candidate with its ranking score.
type Ranked struct {
	Model model.BaseModelSpecification
	Score float64
}

// Rank scores candidates for a model code, drops those below MinRankScore and
// orders the rest by score. Equal scores keep input order.
func Rank(v *vocab.Vocabulary, modelCode string, price *float64, candidates []model.BaseModelSpecification) []Ranked {
	code := normalize.NormalizeModelName(modelCode)
	var out []Ranked
	for _, c := range candidates {
		score := RankScore(v, code, price, c)
		if score < MinRankScore {
			continue
		}
		out = append(out, Ranked{Model: c, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// RankScore computes the weighted score of one candidate against a
// normalized model code.
func RankScore(v *vocab.Vocabulary, code string, price *float64, c model.BaseModelSpecification) float64 {
	name := normalize.NormalizeModelName(c.ModelName)
	score := WeightName * nameMatch(code, name)

	if sameDisplacement(code, c, name) {
		score += WeightDisplacement
	}
	if cat := v.CategoryOf(code); cat != "" && strings.EqualFold(cat, c.Category) {
		score += WeightCategory
	}
	if price != nil {
		if msrp, ok := c.Specifications.Float("pricing", "base_msrp"); ok && msrp > 0 {
			if math.Abs(*price-msrp) <= priceBand*msrp {
				score += WeightPriceBand
			}
		}
	}
	return score
}

// nameMatch is 1 when either string contains the other, else the fraction of
// display-name tokens present in the code.
func nameMatch(code, name string) float64 {
	if code == "" || name == "" {
		return 0
	}
	if strings.Contains(code, name) || strings.Contains(name, code) {
		return 1
	}
	tokens := strings.Fields(name)
	have := make(map[string]bool)
	for _, t := range strings.Fields(code) {
		have[t] = true
	}
	n := 0
	for _, t := range tokens {
		if have[t] {
			n++
		}
	}
	return float64(n) / float64(len(tokens))
}

func displacement(text string) (float64, bool) {
	m := displacementRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	d, err := strconv.ParseFloat(m[1], 64)
	return d, err == nil
}

// sameDisplacement compares the code's displacement token with the
// candidate's name token or its engine.displacement_cc spec. Marketing
// figures round, so 850 matches 849.7.
func sameDisplacement(code string, c model.BaseModelSpecification, name string) bool {
	want, ok := displacement(code)
	if !ok {
		return false
	}
	got, ok := displacement(name)
	if !ok {
		got, ok = c.Specifications.Float("engine", "displacement_cc")
	}
	return ok && math.Abs(want-got) <= displacementTolerance
}
