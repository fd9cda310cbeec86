// Package store persists the catalog, emitted products with their audit
// trail, batch jobs and the enrichment cache.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricelist-cli/internal/model"
)

// ErrNotFound is returned (wrapped) when a keyed record does not exist.
var ErrNotFound = eris.New("store: not found")

// ProductFilter specifies criteria for listing products.
type ProductFilter struct {
	Brand          string                `json:"brand,omitempty"`
	ModelYear      int                   `json:"model_year,omitempty"`
	Level          model.ConfidenceLevel `json:"level,omitempty"`
	ReviewStatus   model.ReviewStatus    `json:"review_status,omitempty"`
	RequiresReview *bool                 `json:"requires_review,omitempty"`
	Limit          int                   `json:"limit,omitempty"`
	Offset         int                   `json:"offset,omitempty"`
}

const defaultListLimit = 100

// Store defines the persistence interface for the reconciliation pipeline.
type Store interface {
	// Catalog
	SaveBaseModels(ctx context.Context, models []model.BaseModelSpecification) (int, error)
	ListBaseModels(ctx context.Context, brand string, year int) ([]model.BaseModelSpecification, error)

	// Products; SaveProduct writes the product and its audit trail atomically.
	SaveProduct(ctx context.Context, product *model.ProductSpecification, audit []model.AuditEntry) error
	GetProduct(ctx context.Context, id string) (*model.ProductSpecification, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductSpecification, error)
	UpdateReviewStatus(ctx context.Context, id string, status model.ReviewStatus, actor string) error
	ListAudit(ctx context.Context, productID string) ([]model.AuditEntry, error)

	// Jobs
	CreateJob(ctx context.Context, job *model.Job) error
	UpdateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)

	// Enrichment cache; a miss returns nil data and no error.
	GetCachedEnrichment(ctx context.Context, key string) ([]byte, error)
	SetCachedEnrichment(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteCachedEnrichment(ctx context.Context, key string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// reviewEntry is the audit record of a manual review decision.
func reviewEntry(id string, productID string, from, to model.ReviewStatus, actor string, now time.Time) model.AuditEntry {
	return model.AuditEntry{
		ID:        id,
		ProductID: productID,
		Action:    model.ActionReviewStatusChanged,
		Before:    map[string]any{"review_status": string(from)},
		After:     map[string]any{"review_status": string(to)},
		Timestamp: now,
		Actor:     actor,
	}
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
