package pipeline

import (
	"context"

	"github.com/sells-group/pricelist-cli/internal/model"
)

// Stage is one step of the inheritance pipeline. Execute returns the stage
// result; a non-nil error marks the stage failed and stops the line.
// Returning Confidence == Unset asks the pipeline to interpolate it from
// Present/Required.
type Stage interface {
	ID() model.StageID
	Execute(ctx context.Context, pc *Context) (model.StageResult, error)
}

// fail builds the error a stage returns to stop the line.
func fail(kind model.ErrorKind, message, hint string, retryable bool) error {
	return &model.ProcessingError{Kind: kind, Message: message, RecoveryHint: hint, Retryable: retryable}
}
