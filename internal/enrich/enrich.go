// Package enrich asks an external LLM for a synthetic base model when the
// catalog has no acceptable candidate for a price-list line.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/pricelist-cli/internal/model"
)

// Request identifies the line to enrich.
type Request struct {
	ModelCode string  `json:"model_code"`
	Brand     string  `json:"brand"`
	ModelYear int     `json:"model_year"`
	Price     float64 `json:"price"`
}

// Result is a synthetic base-model description.
type Result struct {
	ModelName      string              `json:"model_name"`
	Category       string              `json:"category"`
	Specifications model.SpecMap       `json:"specifications"`
	Usage          model.ExternalUsage `json:"-"`
}

// Enricher produces a Result or fails. Implementations may be slow.
type Enricher interface {
	Enrich(ctx context.Context, req Request) (*Result, error)
}

// CacheKey is the cache key for req.
func CacheKey(req Request) string {
	brand := strings.Join(strings.Fields(strings.ToUpper(req.Brand)), "_")
	return fmt.Sprintf("enrich:%s:%d:%s", brand, req.ModelYear, strings.ToUpper(strings.TrimSpace(req.ModelCode)))
}
