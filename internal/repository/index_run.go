package repository

import (
	"context"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IndexRunRepository keeps the log of finished indexing runs.
type IndexRunRepository struct {
	db dbtx
}

func NewIndexRunRepository(pool *pgxpool.Pool) *IndexRunRepository {
	return &IndexRunRepository{db: pool}
}

func (r *IndexRunRepository) RecordRun(ctx context.Context, result *domain.IndexResult) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO index_runs
			(id, entity_id, operation, state, failed_in, outcome, namespace_cleared,
			 sentence_count, cluster_count, chunk_count, error_code, error, started_at, finished_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		result.RunID,
		result.EntityID,
		result.Operation,
		result.State,
		nullableString(string(result.FailedIn)),
		result.Outcome,
		result.NamespaceCleared,
		result.SentenceCount,
		result.ClusterCount,
		result.ChunkCount,
		nullableString(result.ErrorCode),
		nullableString(result.Error),
		result.StartedAt,
		result.FinishedAt,
	)
	return err
}

// ListByEntity returns the latest runs of an entity, newest first.
func (r *IndexRunRepository) ListByEntity(ctx context.Context, entityID string, limit int) ([]*domain.IndexResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, entity_id, operation, state, failed_in, outcome, namespace_cleared,
		        sentence_count, cluster_count, chunk_count, error_code, error, started_at, finished_at
		 FROM index_runs
		 WHERE entity_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2`,
		entityID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.IndexResult
	for rows.Next() {
		var run domain.IndexResult
		var failedIn, errCode, errMsg pgtype.Text
		if err := rows.Scan(&run.RunID, &run.EntityID, &run.Operation, &run.State, &failedIn, &run.Outcome,
			&run.NamespaceCleared, &run.SentenceCount, &run.ClusterCount, &run.ChunkCount,
			&errCode, &errMsg, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		if failedIn.Valid {
			run.FailedIn = domain.PipelineState(failedIn.String)
		}
		if errCode.Valid {
			run.ErrorCode = errCode.String
		}
		if errMsg.Valid {
			run.Error = errMsg.String
		}
		run.Success = run.Outcome == domain.RunOutcomeSucceeded
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
