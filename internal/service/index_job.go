package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/cloo-solutions/kbindex/internal/pagination"
	"github.com/cloo-solutions/kbindex/internal/telemetry"
	"github.com/google/uuid"
)

const (
	defaultJobPageSize = 20
	maxJobPageSize     = 100
)

// UUIDGenerator defines the interface for generating UUIDs
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// IndexJobRepositoryInterface defines the repository interface for queued index jobs
type IndexJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.IndexJob) error
	GetByID(ctx context.Context, id string) (*domain.IndexJob, error)
	ListByEntity(ctx context.Context, entityID string, cursor *pagination.Cursor, limit int) ([]*domain.IndexJob, error)
	SupersedePending(ctx context.Context, entityID string) (int64, error)
}

// ListJobsInput selects one page of an entity's jobs.
type ListJobsInput struct {
	EntityID string
	Cursor   string
	Limit    int
}

// IndexJobService queues index and delete runs for the background worker.
// Only the newest pending job of an entity survives: enqueueing supersedes
// older pending jobs of the same entity.
type IndexJobService struct {
	repo     IndexJobRepositoryInterface
	txRunner TxRunner
	uuidGen  UUIDGenerator
}

// NewIndexJobService creates a new IndexJobService instance
func NewIndexJobService(repo IndexJobRepositoryInterface, txRunner TxRunner) *IndexJobService {
	return &IndexJobService{
		repo:     repo,
		txRunner: txRunner,
		uuidGen:  &DefaultUUIDGenerator{},
	}
}

// EnqueueIndex queues an indexing run. Text without any sentence is rejected
// up front with domain.ErrEmptyContent.
func (s *IndexJobService) EnqueueIndex(ctx context.Context, entityID, text string) (*domain.IndexJob, error) {
	if _, err := SegmentSentences(text); err != nil {
		return nil, err
	}
	return s.enqueue(ctx, entityID, domain.IndexJobActionIndex, text)
}

// EnqueueDelete queues a namespace delete.
func (s *IndexJobService) EnqueueDelete(ctx context.Context, entityID string) (*domain.IndexJob, error) {
	return s.enqueue(ctx, entityID, domain.IndexJobActionDelete, "")
}

func (s *IndexJobService) enqueue(ctx context.Context, entityID string, action domain.IndexJobAction, content string) (*domain.IndexJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "IndexJobService.Enqueue", telemetry.SpanAttributes{
		EntityID:  entityID,
		Operation: string(action),
	})
	defer span.End()

	job := domain.NewIndexJob(
		s.uuidGen.NewString(),
		entityID,
		action,
		content,
		domain.IndexJobStatusPending,
		0,
		"",
		time.Now().UTC(),
		nil,
	)
	if err := domain.ValidateIndexJob(job); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid index job", err)
	}

	write := func(repo IndexJobRepositoryInterface) error {
		if _, err := repo.SupersedePending(ctx, entityID); err != nil {
			return err
		}
		return repo.Create(ctx, job)
	}

	var err error
	if s.txRunner != nil {
		err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			return write(repos.IndexJobs())
		})
	} else {
		err = write(s.repo)
	}
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return job, nil
}

// GetJob returns a job by id.
func (s *IndexJobService) GetJob(ctx context.Context, id string) (*domain.IndexJob, error) {
	return s.repo.GetByID(ctx, id)
}

// ListJobs returns one page of an entity's jobs, newest first.
func (s *IndexJobService) ListJobs(ctx context.Context, input ListJobsInput) (*pagination.PageResult[*domain.IndexJob], error) {
	limit := pagination.ClampLimit(input.Limit, defaultJobPageSize, maxJobPageSize)

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	jobs, err := s.repo.ListByEntity(ctx, input.EntityID, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	return pagination.NewPage(jobs, limit,
		func(j *domain.IndexJob) string { return j.ID },
		func(j *domain.IndexJob) time.Time { return j.CreatedAt },
	), nil
}
