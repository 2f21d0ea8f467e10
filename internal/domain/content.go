package domain

import (
	"fmt"
	"math"
)

// Metric is the similarity metric of a vector index.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
	MetricDot       Metric = "dotproduct"
)

// RawContent is the text to index for one entity. It is never persisted.
type RawContent struct {
	EntityID string
	Text     string
}

// Chunk groups the sentences of one cluster with their mean vector.
type Chunk struct {
	ID     int
	Text   string
	Vector []float32
}

// RecordMetadata is stored alongside each vector.
type RecordMetadata struct {
	Text string `json:"text"`
}

// IndexRecord is the unit written to a namespace of the vector index.
type IndexRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata RecordMetadata `json:"metadata"`
}

// IndexSpec describes the vector index to provision.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    Metric
	Cloud     string
	Region    string
}

// ValidateIndexRecords checks a batch before it is sent to the vector index.
func ValidateIndexRecords(records []IndexRecord, dimension int) error {
	if len(records) == 0 {
		return NewDomainError(ErrCodeInvalidVectorBatch, "vector batch is empty")
	}

	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" {
			return NewDomainError(ErrCodeInvalidVectorBatch, fmt.Sprintf("record %d has no id", i))
		}
		if _, dup := seen[r.ID]; dup {
			return NewDomainError(ErrCodeInvalidVectorBatch, fmt.Sprintf("duplicate record id %q", r.ID))
		}
		seen[r.ID] = struct{}{}

		if len(r.Values) == 0 {
			return NewDomainError(ErrCodeInvalidVectorBatch, fmt.Sprintf("record %q has no values", r.ID))
		}
		if dimension > 0 && len(r.Values) != dimension {
			return NewDomainError(ErrCodeInvalidVectorBatch,
				fmt.Sprintf("record %q has dimension %d, expected %d", r.ID, len(r.Values), dimension))
		}
		for _, v := range r.Values {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return NewDomainError(ErrCodeInvalidVectorBatch, fmt.Sprintf("record %q has non-finite values", r.ID))
			}
		}
	}

	return nil
}
