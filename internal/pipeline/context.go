package pipeline

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/pricelist-cli/internal/model"
)

// RunOptions are per-run switches supplied by the caller.
type RunOptions struct {
	EnableEnrichment     bool
	AutoApproveThreshold float64
}

// Context accumulates one line's state across the stages. It is owned by a
// single execution and never shared.
type Context struct {
	Entry     model.PriceListEntry
	ProductID string
	Options   RunOptions

	BaseModel     *model.BaseModelSpecification
	Matching      model.MatchingResult
	Specs         model.SpecMap
	SpringOptions []model.SpringOption
	Results       []model.StageResult
	Confidence    float64
	Product       *model.ProductSpecification

	audit []model.AuditEntry
	stage model.StageID
	now   func() time.Time
}

func newContext(entry model.PriceListEntry, opts RunOptions, now func() time.Time) *Context {
	return &Context{
		Entry:     entry,
		ProductID: uuid.NewString(),
		Options:   opts,
		now:       now,
	}
}

// Record appends an audit entry for the running stage.
func (pc *Context) Record(action string, before, after map[string]any) {
	pc.audit = append(pc.audit, model.AuditEntry{
		ID:        uuid.NewString(),
		ProductID: pc.ProductID,
		Stage:     pc.stage,
		Action:    action,
		Before:    maps.Clone(before),
		After:     maps.Clone(after),
		Timestamp: pc.now().UTC(),
		Actor:     "pipeline/" + string(pc.stage),
	})
}

// Audit returns the audit entries recorded so far.
func (pc *Context) Audit() []model.AuditEntry {
	return pc.audit
}

// stageConfidences returns the confidences of completed stages in order.
func (pc *Context) stageConfidences() [5]float64 {
	var c [5]float64
	for _, r := range pc.Results {
		if i := stageIndex(r.Stage); i >= 0 {
			c[i] = r.Confidence
		}
	}
	return c
}
