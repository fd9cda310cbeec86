package model

import (
	"time"
)

// ConfidenceLevel is the coarse three-bucket classification of a score.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// LevelFor derives the confidence level from an overall confidence.
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.9:
		return ConfidenceHigh
	case confidence >= 0.7:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ReviewStatus tracks manual review of an emitted product.
type ReviewStatus string

const (
	ReviewPending      ReviewStatus = "pending"
	ReviewApproved     ReviewStatus = "approved"
	ReviewRejected     ReviewStatus = "rejected"
	ReviewAutoApproved ReviewStatus = "auto_approved"
)

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected, ReviewAutoApproved:
		return true
	}
	return false
}

// ProductSpecification is the terminal artifact of the pipeline. Only the
// review status may change after creation.
type ProductSpecification struct {
	ID                string          `json:"id"`
	LineIndex         int             `json:"line_index"`
	ModelCode         string          `json:"model_code"`
	BaseModelID       string          `json:"base_model_id"`
	Brand             string          `json:"brand"`
	ModelName         string          `json:"model_name"`
	ModelYear         int             `json:"model_year"`
	Price             float64         `json:"price"`
	Currency          string          `json:"currency,omitempty"`
	Specifications    SpecMap         `json:"specifications"`
	SpringOptions     []SpringOption  `json:"spring_options"`
	StageResults      []StageResult   `json:"pipeline_results"`
	Matching          MatchingResult  `json:"matching"`
	OverallConfidence float64         `json:"overall_confidence"`
	ConfidenceLevel   ConfidenceLevel `json:"confidence_level"`
	RequiresReview    bool            `json:"requires_review"`
	ReviewStatus      ReviewStatus    `json:"review_status"`
	CreatedAt         time.Time       `json:"created_at"`
}

// SetReviewStatus records a manual review decision.
func (p *ProductSpecification) SetReviewStatus(status ReviewStatus) {
	p.ReviewStatus = status
}

// StageConfidences returns the confidence of each stage in pipeline order.
// Missing stages report 0.
func (p *ProductSpecification) StageConfidences() [5]float64 {
	var out [5]float64
	for _, r := range p.StageResults {
		for i, id := range Stages {
			if r.Stage == id {
				out[i] = r.Confidence
			}
		}
	}
	return out
}
