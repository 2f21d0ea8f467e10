package domain

import (
	"fmt"
	"time"
)

// IndexJobStatus represents the status of an index job
type IndexJobStatus string

const (
	IndexJobStatusPending    IndexJobStatus = "pending"
	IndexJobStatusProcessing IndexJobStatus = "processing"
	IndexJobStatusCompleted  IndexJobStatus = "completed"
	IndexJobStatusFailed     IndexJobStatus = "failed"
	IndexJobStatusSuperseded IndexJobStatus = "superseded"
)

// IndexJobAction is the pipeline operation a job runs.
type IndexJobAction string

const (
	IndexJobActionIndex  IndexJobAction = "index"
	IndexJobActionDelete IndexJobAction = "delete"
)

// IndexJob represents a queued indexing or namespace delete for one entity
type IndexJob struct {
	ID          string
	EntityID    string
	Action      IndexJobAction
	Content     string // Set for index jobs
	Status      IndexJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewIndexJob creates a new IndexJob instance
func NewIndexJob(
	id, entityID string,
	action IndexJobAction,
	content string,
	status IndexJobStatus,
	retries int32,
	errMsg string,
	createdAt time.Time,
	processedAt *time.Time,
) *IndexJob {
	return &IndexJob{
		ID:          id,
		EntityID:    entityID,
		Action:      action,
		Content:     content,
		Status:      status,
		Retries:     retries,
		Error:       errMsg,
		CreatedAt:   createdAt,
		ProcessedAt: processedAt,
	}
}

// ValidateIndexJob validates an IndexJob instance
func ValidateIndexJob(j *IndexJob) error {
	if j == nil {
		return fmt.Errorf("index job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("index job ID is required")
	}

	if j.EntityID == "" {
		return fmt.Errorf("index job EntityID is required")
	}

	if !isValidIndexJobAction(j.Action) {
		return fmt.Errorf("index job Action is invalid: %s", j.Action)
	}

	if j.Action == IndexJobActionDelete && j.Content != "" {
		return fmt.Errorf("delete job cannot carry content")
	}

	if !isValidIndexJobStatus(j.Status) {
		return fmt.Errorf("index job Status is invalid: %s", j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("index job Retries cannot be negative")
	}

	return nil
}

// IsFinished reports whether the job will not be picked up again.
func (j *IndexJob) IsFinished() bool {
	switch j.Status {
	case IndexJobStatusCompleted, IndexJobStatusFailed, IndexJobStatusSuperseded:
		return true
	}
	return false
}

// isValidIndexJobStatus checks if an IndexJobStatus is valid
func isValidIndexJobStatus(s IndexJobStatus) bool {
	switch s {
	case IndexJobStatusPending, IndexJobStatusProcessing,
		IndexJobStatusCompleted, IndexJobStatusFailed, IndexJobStatusSuperseded:
		return true
	}
	return false
}

func isValidIndexJobAction(a IndexJobAction) bool {
	return a == IndexJobActionIndex || a == IndexJobActionDelete
}
