package service

import (
	"context"
	"strconv"

	"github.com/cloo-solutions/kbindex/internal/domain"
)

// IndexWriter upserts chunk records into an entity namespace.
type IndexWriter struct {
	index     VectorIndex
	indexName string
	dimension int
}

func NewIndexWriter(index VectorIndex, indexName string, dimension int) *IndexWriter {
	return &IndexWriter{index: index, indexName: indexName, dimension: dimension}
}

// BuildRecords converts chunks into index records keyed by chunk id.
func BuildRecords(chunks []domain.Chunk) []domain.IndexRecord {
	records := make([]domain.IndexRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.IndexRecord{
			ID:       strconv.Itoa(c.ID),
			Values:   c.Vector,
			Metadata: domain.RecordMetadata{Text: c.Text},
		}
	}
	return records
}

// Write validates the batch and upserts it. Invalid batches never reach the index.
func (w *IndexWriter) Write(ctx context.Context, entityID string, records []domain.IndexRecord) error {
	if entityID == "" {
		return domain.Wrap(domain.ErrInvalidVectorBatch, domain.ErrMissingRequiredField)
	}
	if err := domain.ValidateIndexRecords(records, w.dimension); err != nil {
		return err
	}

	if err := w.index.Upsert(ctx, w.indexName, entityID, records); err != nil {
		return domain.Wrap(domain.ErrIndexWrite, err)
	}
	return nil
}
