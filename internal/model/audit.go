package model

import "time"

// AuditEntry records one change made while building a product. Entries are
// append-only.
type AuditEntry struct {
	ID               string         `json:"id"`
	ProductID        string         `json:"product_id"`
	Stage            StageID        `json:"stage"`
	Action           string         `json:"action"`
	Before           map[string]any `json:"before,omitempty"`
	After            map[string]any `json:"after,omitempty"`
	ConfidenceChange float64        `json:"confidence_change"`
	Timestamp        time.Time      `json:"timestamp"`
	Actor            string         `json:"actor"`
}

// Audit actions.
const (
	ActionBaseModelMatched    = "base_model_matched"
	ActionBaseModelEnriched   = "base_model_enriched"
	ActionSpecsInherited      = "specifications_inherited"
	ActionFieldDerived        = "field_derived"
	ActionFieldOverridden     = "field_overridden"
	ActionSpringOptionAdded   = "spring_option_added"
	ActionProductValidated    = "product_validated"
	ActionReviewStatusChanged = "review_status_changed"
)
