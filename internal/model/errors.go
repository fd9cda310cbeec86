package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a per-line processing failure.
type ErrorKind string

const (
	// ErrorKindValidation is malformed input; fatal for the line, not retried.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindMatching means no tier cleared its threshold.
	ErrorKindMatching ErrorKind = "matching"
	// ErrorKindStageFailure is an explicit stage failure.
	ErrorKindStageFailure ErrorKind = "stage_failure"
	// ErrorKindStageException is an unexpected fault inside a stage.
	ErrorKindStageException ErrorKind = "stage_exception"
)

// ProcessingError is the structured error record for one failed line.
type ProcessingError struct {
	LineIndex    int       `json:"line_index"`
	ModelCode    string    `json:"model_code"`
	Stage        StageID   `json:"stage,omitempty"`
	Kind         ErrorKind `json:"kind"`
	Message      string    `json:"message"`
	RecoveryHint string    `json:"recovery_hint,omitempty"`
	Retryable    bool      `json:"retryable"`
	Detail       string    `json:"detail,omitempty"`
}

func (e *ProcessingError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("line %d (%s): %s: %s", e.LineIndex, e.ModelCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("line %d (%s): %s at %s: %s", e.LineIndex, e.ModelCode, e.Kind, e.Stage, e.Message)
}

// AsProcessingError extracts a ProcessingError from err's chain.
func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
