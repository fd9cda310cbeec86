package model

import "time"

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobCounts tallies line outcomes for a batch job.
type JobCounts struct {
	Total       int `json:"total"`
	Dispatched  int `json:"dispatched"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	NeedsReview int `json:"needs_review"`
}

// Job is the persisted record of a batch submission.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Counts    JobCounts `json:"counts"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
