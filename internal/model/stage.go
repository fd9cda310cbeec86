package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// StageID identifies one of the five pipeline stages.
type StageID string

const (
	StageBaseModelMatching        StageID = "base_model_matching"
	StageSpecificationInheritance StageID = "specification_inheritance"
	StageCustomizationProcessing  StageID = "customization_processing"
	StageSpringOptionsEnhancement StageID = "spring_options_enhancement"
	StageFinalValidation          StageID = "final_validation"

	// StagePersistence is the pseudo-stage used for errors saving a finished product.
	StagePersistence StageID = "persistence"
)

// Stages lists the pipeline stages in execution order.
var Stages = []StageID{
	StageBaseModelMatching,
	StageSpecificationInheritance,
	StageCustomizationProcessing,
	StageSpringOptionsEnhancement,
	StageFinalValidation,
}

// ExternalUsage counts calls to slow or paid external services.
type ExternalUsage struct {
	Calls        int     `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add accumulates other into u.
func (u *ExternalUsage) Add(other ExternalUsage) {
	u.Calls += other.Calls
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CostUSD += other.CostUSD
}

// StagePayload is the stage-specific part of a StageResult. Each stage has
// exactly one concrete payload type.
type StagePayload interface {
	StageID() StageID
}

// MatchingPayload is produced by base-model matching.
type MatchingPayload struct {
	Matching       MatchingResult  `json:"matching"`
	BaseModelID    string          `json:"base_model_id,omitempty"`
	Source         BaseModelSource `json:"source,omitempty"`
	Candidates     int             `json:"candidates"`
	EnrichmentUsed bool            `json:"enrichment_used"`

	// ClosestRanked is the repository's best ranked candidate when no tier
	// accepted. It is a hint for reviewers and never becomes the base model.
	ClosestRanked string `json:"closest_ranked,omitempty"`
}

func (MatchingPayload) StageID() StageID { return StageBaseModelMatching }

// InheritancePayload is produced by specification inheritance.
type InheritancePayload struct {
	BaseModelID     string   `json:"base_model_id"`
	GroupsInherited []string `json:"groups_inherited"`
	FieldsInherited int      `json:"fields_inherited"`
}

func (InheritancePayload) StageID() StageID { return StageSpecificationInheritance }

// FieldOverride records a price-list value replacing an inherited one.
type FieldOverride struct {
	Group    string `json:"group"`
	Key      string `json:"key"`
	Previous any    `json:"previous,omitempty"`
	Value    any    `json:"value"`
}

// CustomizationPayload is produced by customization processing.
type CustomizationPayload struct {
	Derived   map[string]any  `json:"derived"`
	Overrides []FieldOverride `json:"overrides,omitempty"`
}

func (CustomizationPayload) StageID() StageID { return StageCustomizationProcessing }

// SpringOptionsPayload is produced by spring-options enhancement.
type SpringOptionsPayload struct {
	Options []SpringOption `json:"options"`
}

func (SpringOptionsPayload) StageID() StageID { return StageSpringOptionsEnhancement }

// ValidationCheck is one identity or completeness check of final validation.
type ValidationCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ValidationPayload is produced by final validation.
type ValidationPayload struct {
	Checks            []ValidationCheck `json:"checks"`
	OverallConfidence float64           `json:"overall_confidence"`
	ConfidenceLevel   ConfidenceLevel   `json:"confidence_level"`
}

func (ValidationPayload) StageID() StageID { return StageFinalValidation }

// StageResult is the common envelope every stage returns.
type StageResult struct {
	Stage      StageID       `json:"stage"`
	Success    bool          `json:"success"`
	Confidence float64       `json:"confidence_score"`
	Duration   time.Duration `json:"processing_time_ns"`
	Warnings   []string      `json:"warnings,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
	Usage      ExternalUsage `json:"usage"`
	Payload    StagePayload  `json:"payload,omitempty"`

	// Completeness reports required outputs present/expected. When a stage
	// leaves Confidence unset, the pipeline interpolates it from these.
	Present  int `json:"-"`
	Required int `json:"-"`
}

// UnmarshalJSON decodes Payload into the concrete type named by Stage.
func (r *StageResult) UnmarshalJSON(data []byte) error {
	type alias StageResult
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return eris.Wrap(err, "model: unmarshal stage result")
	}
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		r.Payload = nil
		return nil
	}

	var payload StagePayload
	switch r.Stage {
	case StageBaseModelMatching:
		payload = &MatchingPayload{}
	case StageSpecificationInheritance:
		payload = &InheritancePayload{}
	case StageCustomizationProcessing:
		payload = &CustomizationPayload{}
	case StageSpringOptionsEnhancement:
		payload = &SpringOptionsPayload{}
	case StageFinalValidation:
		payload = &ValidationPayload{}
	default:
		return eris.Errorf("model: unknown stage %q", r.Stage)
	}
	if err := json.Unmarshal(aux.Payload, payload); err != nil {
		return eris.Wrapf(err, "model: unmarshal %s payload", r.Stage)
	}
	r.Payload = derefPayload(payload)
	return nil
}

func derefPayload(p StagePayload) StagePayload {
	switch v := p.(type) {
	case *MatchingPayload:
		return *v
	case *InheritancePayload:
		return *v
	case *CustomizationPayload:
		return *v
	case *SpringOptionsPayload:
		return *v
	case *ValidationPayload:
		return *v
	}
	return p
}
