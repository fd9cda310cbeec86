package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/pricelist-cli/internal/model"
)

// Unset marks a stage confidence the pipeline should interpolate from
// required-output completeness.
const Unset = -1.0

// Interpolation range for unset confidences.
const (
	minInterpolated = 0.5
	maxInterpolated = 0.95
)

// Weights are the per-stage weights of the overall confidence.
type Weights struct {
	Matching      float64 `mapstructure:"matching"`
	Inheritance   float64 `mapstructure:"inheritance"`
	Customization float64 `mapstructure:"customization"`
	SpringOptions float64 `mapstructure:"spring_options"`
	Validation    float64 `mapstructure:"validation"`
}

// DefaultWeights returns 0.3/0.2/0.2/0.1/0.2.
func DefaultWeights() Weights {
	return Weights{Matching: 0.3, Inheritance: 0.2, Customization: 0.2, SpringOptions: 0.1, Validation: 0.2}
}

func (w Weights) array() [5]float64 {
	return [5]float64{w.Matching, w.Inheritance, w.Customization, w.SpringOptions, w.Validation}
}

// Validate requires non-negative weights that are not all zero. Weights need
// not sum to 1; Aggregate normalizes by their sum.
func (w Weights) Validate() error {
	sum := 0.0
	for _, v := range w.array() {
		if v < 0 {
			return eris.New("pipeline: negative stage weight")
		}
		sum += v
	}
	if sum == 0 {
		return eris.New("pipeline: stage weights are all zero")
	}
	return nil
}

// Aggregate returns the weighted mean of five stage confidences in pipeline
// order. With the default weights this is 0.3c1+0.2c2+0.2c3+0.1c4+0.2c5.
func (w Weights) Aggregate(c [5]float64) float64 {
	return w.partial(c, len(c))
}

// partial is the weighted mean over the first n stages, used as the
// running confidence while a line is in flight.
func (w Weights) partial(c [5]float64, n int) float64 {
	ws := w.array()
	num, den := 0.0, 0.0
	for i := 0; i < n && i < len(ws); i++ {
		num += ws[i] * c[i]
		den += ws[i]
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Interpolate maps present/required onto [0.5, 0.95]. Nothing required is
// treated as complete.
func Interpolate(present, required int) float64 {
	if required <= 0 {
		return maxInterpolated
	}
	if present > required {
		present = required
	}
	if present < 0 {
		present = 0
	}
	return minInterpolated + (maxInterpolated-minInterpolated)*float64(present)/float64(required)
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// stageIndex returns the position of id in model.Stages, or -1.
func stageIndex(id model.StageID) int {
	for i, s := range model.Stages {
		if s == id {
			return i
		}
	}
	return -1
}
