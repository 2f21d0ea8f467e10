package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/cloo-solutions/kbindex/internal/telemetry"
)

const (
	// MaxRetries is the maximum number of attempts for a retryable job
	MaxRetries = 3
	// DefaultBatchSize bounds the jobs claimed per poll
	DefaultBatchSize = 20
	// DefaultStaleAfter returns jobs stuck in processing to the queue
	DefaultStaleAfter = 15 * time.Minute
)

// IndexJobRepository defines the interface for index job persistence
type IndexJobRepository interface {
	// ClaimPending moves pending jobs to processing and returns them
	ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error)

	// UpdateStatus updates the status of an index job
	UpdateStatus(ctx context.Context, jobID string, status domain.IndexJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error

	// ResetStale requeues jobs that have been processing for too long
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Indexer runs the indexing pipeline for one entity.
type Indexer interface {
	Index(ctx context.Context, entityID, text string) (*domain.IndexResult, error)
	DeleteIndex(ctx context.Context, entityID string) (*domain.IndexResult, error)
}

// IndexWorker processes queued index and delete jobs
type IndexWorker struct {
	repo       IndexJobRepository
	indexer    Indexer
	batchSize  int
	staleAfter time.Duration
}

// NewIndexWorker creates a new IndexWorker instance
func NewIndexWorker(repo IndexJobRepository, indexer Indexer) *IndexWorker {
	return &IndexWorker{
		repo:       repo,
		indexer:    indexer,
		batchSize:  DefaultBatchSize,
		staleAfter: DefaultStaleAfter,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IndexWorker) ProcessJobs(ctx context.Context) error {
	if n, err := w.repo.ResetStale(ctx, w.staleAfter); err != nil {
		log.Printf("Failed to requeue stale index jobs: %v", err)
	} else if n > 0 {
		log.Printf("Requeued %d stale index jobs", n)
	}

	jobs, err := w.repo.ClaimPending(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("Processing %d pending index jobs", len(jobs))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			log.Printf("Error processing job %s: %v", job.ID, err)
		}
	}

	return nil
}

func (w *IndexWorker) processJob(ctx context.Context, job *domain.IndexJob) error {
	ctx, span := telemetry.StartTransaction(ctx, "IndexWorker.processJob", "job.process")
	defer span.End()

	var result *domain.IndexResult
	var err error
	switch job.Action {
	case domain.IndexJobActionIndex:
		log.Printf("Processing job %s: index entity %s", job.ID, job.EntityID)
		result, err = w.indexer.Index(ctx, job.EntityID, job.Content)
	case domain.IndexJobActionDelete:
		log.Printf("Processing job %s: delete entity %s", job.ID, job.EntityID)
		result, err = w.indexer.DeleteIndex(ctx, job.EntityID)
	default:
		err = domain.Wrap(domain.ErrInvalidIndexJobAction, fmt.Errorf("job %s has action %q", job.ID, job.Action))
	}

	if err != nil {
		return w.handleJobFailure(ctx, job, result, err)
	}

	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	log.Printf("Job %s completed successfully", job.ID)
	return nil
}

// handleJobFailure retries retryable failures and fails the rest immediately.
func (w *IndexWorker) handleJobFailure(ctx context.Context, job *domain.IndexJob, result *domain.IndexResult, jobErr error) error {
	log.Printf("Job %s failed: %v", job.ID, jobErr)

	if result != nil && result.Outcome == domain.RunOutcomeFailedAfterDelete {
		telemetry.CaptureMessage(ctx, fmt.Sprintf("entity %s left without records after failed run %s", job.EntityID, result.RunID))
	}

	if !domain.IsRetryable(jobErr) {
		log.Printf("Job %s failed permanently (%s)", job.ID, domain.ErrorCode(jobErr))
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusFailed, jobErr.Error()); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		log.Printf("Job %s exceeded max retries (%d), marking as failed", job.ID, MaxRetries)
		telemetry.CaptureError(ctx, jobErr)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	log.Printf("Job %s will be retried (attempt %d/%d)", job.ID, job.Retries+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
