package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/normalize"
	"github.com/sells-group/pricelist-cli/internal/vocab"
)

func stageContext(entry model.PriceListEntry, specs model.SpecMap) *Context {
	pc := newContext(entry, RunOptions{AutoApproveThreshold: 0.9}, time.Now)
	pc.Specs = specs
	return pc
}

func TestCustomization_OverridesAndDerives(t *testing.T) {
	v := vocab.Default()
	s := &CustomizationStage{vocab: v, norm: normalize.New(v)}
	entry := model.PriceListEntry{
		ModelCode: "SUMMIT_X_EXPERT",
		Brand:     "Ski-Doo",
		ModelYear: 2024,
		Model:     "Summit X Expert",
		Engine:    "850 E-TEC Turbo R",
		Track:     `165" x 3.0" PowderMax X-Light`,
		Starter:   "SHOT",
		Color:     "Terra Green",
		Price:     23999,
	}
	pc := stageContext(entry, model.SpecMap{"engine": {"displacement_cc": 599.4}})
	pc.stage = s.ID()

	res, err := s.Execute(context.Background(), pc)
	require.NoError(t, err)

	cc, _ := pc.Specs.Get("engine", "displacement_cc")
	assert.Equal(t, 850.0, cc)
	fi, _ := pc.Specs.Get("engine", "forced_induction")
	assert.Equal(t, "turbocharged_high_output", fi)
	length, _ := pc.Specs.Get("track", "length_in")
	assert.Equal(t, 165.0, length)
	lug, _ := pc.Specs.Get("track", "lug_height_in")
	assert.Equal(t, 3.0, lug)
	starter, _ := pc.Specs.Get("features", "starter")
	assert.Equal(t, "electric", starter)
	color, _ := pc.Specs.Get("identity", "color")
	assert.Equal(t, "TERRA GREEN", color)

	payload, ok := res.Payload.(model.CustomizationPayload)
	require.True(t, ok)
	require.Len(t, payload.Overrides, 1)
	assert.Equal(t, 599.4, payload.Overrides[0].Previous)
	assert.Len(t, res.Warnings, 1)

	assert.Equal(t, Unset, res.Confidence)
	assert.Equal(t, coreDerivations, res.Present)
	assert.Equal(t, coreDerivations, res.Required)

	var overridden int
	for _, a := range pc.Audit() {
		if a.Action == model.ActionFieldOverridden {
			overridden++
		}
	}
	assert.Equal(t, 1, overridden)
}

func TestCustomization_RequiresSpecs(t *testing.T) {
	v := vocab.Default()
	s := &CustomizationStage{vocab: v, norm: normalize.New(v)}

	_, err := s.Execute(context.Background(), stageContext(model.PriceListEntry{ModelCode: "X"}, nil))
	pe, ok := model.AsProcessingError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrorKindStageFailure, pe.Kind)
}

func TestStarterType(t *testing.T) {
	assert.Equal(t, "electric", starterType("Electric Start"))
	assert.Equal(t, "manual", starterType("recoil"))
	assert.Equal(t, "", starterType("standard"))
	assert.Equal(t, "", starterType(""))
}

func TestSpringOptions_DetectsAndDedups(t *testing.T) {
	v := vocab.Default()
	s := &SpringOptionsStage{vocab: v, norm: normalize.New(v)}
	entry := model.PriceListEntry{
		ModelCode: "EXPEDITION_LE",
		Model:     "Expedition LE Heated Seat",
		Color:     "Black",
	}
	pc := stageContext(entry, model.SpecMap{"features": {"heated_seat": true}})
	pc.BaseModel = &model.BaseModelSpecification{Specifications: model.SpecMap{"identity": {"colors": []any{"Black", "Yellow"}}}}
	pc.stage = s.ID()

	res, err := s.Execute(context.Background(), pc)
	require.NoError(t, err)

	require.Len(t, pc.SpringOptions, 1, "comfort from price list and specs collapse to one")
	o := pc.SpringOptions[0]
	assert.Equal(t, model.OptionComfort, o.Type)
	assert.Equal(t, DetectedFromPriceList, o.DetectionMethod)
	assert.Equal(t, "HEATED SEAT", o.TechnicalDetails["keyword"])
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	assert.Len(t, pc.Audit(), 1)
}

func TestSpringOptions_ColorChangeAndSpecFeature(t *testing.T) {
	v := vocab.Default()
	s := &SpringOptionsStage{vocab: v, norm: normalize.New(v)}
	entry := model.PriceListEntry{ModelCode: "MXZ_SPORT_600", Color: "Neo Mint"}
	pc := stageContext(entry, model.SpecMap{"features": {"windshield": true}})
	pc.BaseModel = &model.BaseModelSpecification{Specifications: model.SpecMap{"identity": {"color": "Black"}}}

	res, err := s.Execute(context.Background(), pc)
	require.NoError(t, err)

	byType := map[model.OptionType]model.SpringOption{}
	for _, o := range pc.SpringOptions {
		byType[o.Type] = o
	}
	require.Contains(t, byType, model.OptionColorChange)
	assert.Equal(t, DetectedFromColor, byType[model.OptionColorChange].DetectionMethod)
	assert.Equal(t, "NEO MINT", byType[model.OptionColorChange].TechnicalDetails["color"])

	require.Contains(t, byType, model.OptionComfort)
	assert.Equal(t, DetectedFromSpecs, byType[model.OptionComfort].DetectionMethod)
	assert.InDelta(t, 0.72, byType[model.OptionComfort].Confidence, 1e-9)
	assert.Greater(t, res.Confidence, 0.0)
}

func TestSpringOptions_NoneIsSuccess(t *testing.T) {
	v := vocab.Default()
	s := &SpringOptionsStage{vocab: v, norm: normalize.New(v)}
	pc := stageContext(model.PriceListEntry{ModelCode: "TUNDRA_LT_600"}, model.SpecMap{})

	res, err := s.Execute(context.Background(), pc)
	require.NoError(t, err)
	assert.Empty(t, pc.SpringOptions)
	assert.InDelta(t, noOptionsConfidence, res.Confidence, 1e-9)
}

func TestValidation_CompletenessLowersConfidence(t *testing.T) {
	v := vocab.Default()
	s := &ValidationStage{vocab: v, weights: DefaultWeights(), maxPrice: 250000}
	pc := stageContext(renegadeEntry(), model.SpecMap{"engine": {"displacement_cc": 850.0}})
	pc.BaseModel = &model.BaseModelSpecification{ID: "bm-1", ModelName: "Renegade 850"}

	res, err := s.Execute(context.Background(), pc)
	require.NoError(t, err)
	// 4 identity + non-empty specs + 1 of 5 required groups.
	assert.InDelta(t, Interpolate(6, 10), res.Confidence, 1e-9)
	assert.Len(t, res.Warnings, 4)
	require.NotNil(t, pc.Product)
	assert.Equal(t, "Renegade 850", pc.Product.ModelName)
	assert.True(t, pc.Product.RequiresReview)
}
