package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/cloo-solutions/kbindex/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const indexJobColumns = `id, entity_id, action, content, status, retries, error, created_at, processed_at`

type IndexJobRepository struct {
	db dbtx
}

func NewIndexJobRepository(pool *pgxpool.Pool) *IndexJobRepository {
	return &IndexJobRepository{db: pool}
}

func NewIndexJobRepositoryWithTx(tx pgx.Tx) *IndexJobRepository {
	return &IndexJobRepository{db: tx}
}

func (r *IndexJobRepository) Create(ctx context.Context, job *domain.IndexJob) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO index_jobs (id, entity_id, action, content, status, retries, error, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.EntityID, job.Action, nullableString(job.Content), job.Status, job.Retries,
		nullableString(job.Error), job.CreatedAt, job.ProcessedAt,
	)
	return err
}

func (r *IndexJobRepository) GetByID(ctx context.Context, id string) (*domain.IndexJob, error) {
	job, err := scanIndexJob(r.db.QueryRow(ctx,
		`SELECT `+indexJobColumns+` FROM index_jobs WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIndexJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByEntity returns an entity's jobs newest first, starting after cursor.
func (r *IndexJobRepository) ListByEntity(ctx context.Context, entityID string, cursor *pagination.Cursor, limit int) ([]*domain.IndexJob, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+indexJobColumns+`
			 FROM index_jobs
			 WHERE entity_id = $1 AND (created_at, id) < ($2, $3::uuid)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			entityID, cursor.Timestamp, cursor.LastID, limit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+indexJobColumns+`
			 FROM index_jobs
			 WHERE entity_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			entityID, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	return collectIndexJobs(rows)
}

// ClaimPending moves up to limit pending jobs to processing. At most one job
// per entity is claimed, and entities that already have a processing job are
// skipped, so runs for the same entity never overlap.
func (r *IndexJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`WITH candidates AS (
			 SELECT DISTINCT ON (j.entity_id) j.id
			 FROM index_jobs j
			 WHERE j.status = $1
			   AND NOT EXISTS (
			       SELECT 1 FROM index_jobs p
			       WHERE p.entity_id = j.entity_id AND p.status = $3
			   )
			 ORDER BY j.entity_id, j.created_at ASC
		 ), cte AS (
			 SELECT id
			 FROM index_jobs
			 WHERE id IN (SELECT id FROM candidates) AND status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE index_jobs
		 SET status = $3,
		     error = NULL,
		     claimed_at = now(),
		     processed_at = NULL
		 FROM cte
		 WHERE index_jobs.id = cte.id
		 RETURNING index_jobs.id, index_jobs.entity_id, index_jobs.action, index_jobs.content, index_jobs.status,
		           index_jobs.retries, index_jobs.error, index_jobs.created_at, index_jobs.processed_at`,
		domain.IndexJobStatusPending, limit, domain.IndexJobStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	return collectIndexJobs(rows)
}

// UpdateStatus sets the job status. Finished jobs drop their content, so raw
// text only lives in the queue while it is waiting to be indexed.
func (r *IndexJobRepository) UpdateStatus(ctx context.Context, id string, status domain.IndexJobStatus, errMsg string) error {
	var processedAt *time.Time
	finished := status == domain.IndexJobStatusCompleted ||
		status == domain.IndexJobStatusFailed ||
		status == domain.IndexJobStatusSuperseded
	if finished {
		now := time.Now().UTC()
		processedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs
		 SET status = $1,
		     error = $2,
		     processed_at = $3,
		     content = CASE WHEN $5 THEN NULL ELSE content END
		 WHERE id = $4`,
		status, nullableString(errMsg), processedAt, id, finished,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIndexJobNotFound
	}
	return nil
}

func (r *IndexJobRepository) IncrementRetries(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs SET retries = retries + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIndexJobNotFound
	}
	return nil
}

// SupersedePending retires every pending job of the entity.
func (r *IndexJobRepository) SupersedePending(ctx context.Context, entityID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs
		 SET status = $1, content = NULL, processed_at = now()
		 WHERE entity_id = $2 AND status = $3`,
		domain.IndexJobStatusSuperseded, entityID, domain.IndexJobStatusPending,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// ResetStale returns jobs claimed more than olderThan ago to pending so a
// crashed worker does not block its entities forever.
func (r *IndexJobRepository) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs
		 SET status = $1, claimed_at = NULL
		 WHERE status = $2 AND claimed_at < $3`,
		domain.IndexJobStatusPending, domain.IndexJobStatusProcessing, time.Now().UTC().Add(-olderThan),
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func scanIndexJob(row pgx.Row) (*domain.IndexJob, error) {
	var job domain.IndexJob
	var content, errMsg pgtype.Text
	if err := row.Scan(&job.ID, &job.EntityID, &job.Action, &content, &job.Status,
		&job.Retries, &errMsg, &job.CreatedAt, &job.ProcessedAt); err != nil {
		return nil, err
	}
	if content.Valid {
		job.Content = content.String
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	return &job, nil
}

func collectIndexJobs(rows pgx.Rows) ([]*domain.IndexJob, error) {
	defer rows.Close()

	var jobs []*domain.IndexJob
	for rows.Next() {
		job, err := scanIndexJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
