package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var ErrIndexNotFound = errors.New("vector index not found")

// PgVectorIndex stores namespaced chunk vectors in Postgres with pgvector.
type PgVectorIndex struct {
	pool *pgxpool.Pool
}

func NewPgVectorIndex(pool *pgxpool.Pool) *PgVectorIndex {
	return &PgVectorIndex{pool: pool}
}

func (r *PgVectorIndex) ListIndexes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM vector_indexes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CreateIndex registers an index. Creating an existing index is a no-op.
func (r *PgVectorIndex) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	metric := spec.Metric
	if metric == "" {
		metric = domain.MetricCosine
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO vector_indexes (name, dimension, metric, cloud, region)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO NOTHING`,
		spec.Name, spec.Dimension, metric, nullableString(spec.Cloud), nullableString(spec.Region),
	)
	return err
}

func (r *PgVectorIndex) DescribeIndex(ctx context.Context, name string) (*domain.IndexSpec, error) {
	var spec domain.IndexSpec
	var cloud, region *string
	err := r.pool.QueryRow(ctx,
		`SELECT name, dimension, metric, cloud, region FROM vector_indexes WHERE name = $1`,
		name,
	).Scan(&spec.Name, &spec.Dimension, &spec.Metric, &cloud, &region)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIndexNotFound
		}
		return nil, err
	}
	if cloud != nil {
		spec.Cloud = *cloud
	}
	if region != nil {
		spec.Region = *region
	}
	return &spec, nil
}

// DeleteNamespace removes every record of the namespace. Like a hosted vector
// index, it reports a namespace without records as not found.
func (r *PgVectorIndex) DeleteNamespace(ctx context.Context, indexName, namespace string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM index_records WHERE index_name = $1 AND namespace = $2`,
		indexName, namespace,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", indexName, namespace, domain.ErrNamespaceNotFound)
	}
	return nil
}

// Upsert writes all records in one transaction. Records with an existing id
// are overwritten.
func (r *PgVectorIndex) Upsert(ctx context.Context, indexName, namespace string, records []domain.IndexRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var dimension int
	err = tx.QueryRow(ctx, `SELECT dimension FROM vector_indexes WHERE name = $1 FOR SHARE`, indexName).Scan(&dimension)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", indexName, ErrIndexNotFound)
		}
		return err
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		if len(rec.Values) != dimension {
			return fmt.Errorf("record %s has dimension %d, index %s expects %d", rec.ID, len(rec.Values), indexName, dimension)
		}
		batch.Queue(
			`INSERT INTO index_records (index_name, namespace, record_id, embedding, text, updated_at)
			 VALUES ($1, $2, $3, $4, $5, now())
			 ON CONFLICT (index_name, namespace, record_id)
			 DO UPDATE SET embedding = EXCLUDED.embedding, text = EXCLUDED.text, updated_at = now()`,
			indexName, namespace, rec.ID, pgvector.NewVector(rec.Values), rec.Metadata.Text,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("pgvector: upserted %d records into %s/%s", len(records), indexName, namespace)
	return nil
}

// ListNamespace returns the stored records of a namespace ordered by id.
func (r *PgVectorIndex) ListNamespace(ctx context.Context, indexName, namespace string) ([]domain.IndexRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT record_id, embedding, text
		 FROM index_records
		 WHERE index_name = $1 AND namespace = $2
		 ORDER BY length(record_id), record_id`,
		indexName, namespace,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []domain.IndexRecord{}
	for rows.Next() {
		var rec domain.IndexRecord
		var embedding pgvector.Vector
		if err := rows.Scan(&rec.ID, &embedding, &rec.Metadata.Text); err != nil {
			return nil, err
		}
		rec.Values = embedding.Slice()
		records = append(records, rec)
	}
	return records, rows.Err()
}
