package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloo-solutions/kbindex/internal/domain"
)

// VectorIndex is the vector index service holding one namespace per entity.
// DeleteNamespace must return an error matching domain.ErrNamespaceNotFound
// when there is nothing to delete.
type VectorIndex interface {
	ListIndexes(ctx context.Context) ([]string, error)
	CreateIndex(ctx context.Context, spec domain.IndexSpec) error
	DeleteNamespace(ctx context.Context, indexName, namespace string) error
	Upsert(ctx context.Context, indexName, namespace string, records []domain.IndexRecord) error
}

// NamespaceSynchronizer clears an entity's namespace and makes sure the
// target index exists before a write.
type NamespaceSynchronizer struct {
	index VectorIndex
	spec  domain.IndexSpec
}

func NewNamespaceSynchronizer(index VectorIndex, spec domain.IndexSpec) *NamespaceSynchronizer {
	if spec.Metric == "" {
		spec.Metric = domain.MetricCosine
	}
	return &NamespaceSynchronizer{index: index, spec: spec}
}

// DeleteNamespace removes every vector stored for the entity. A namespace
// that does not exist counts as deleted.
func (s *NamespaceSynchronizer) DeleteNamespace(ctx context.Context, entityID string) error {
	if entityID == "" {
		return domain.Wrap(domain.ErrNamespaceDelete, domain.ErrMissingRequiredField)
	}

	err := s.index.DeleteNamespace(ctx, s.spec.Name, entityID)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNamespaceNotFound) {
		log.Printf("namespace %s: already deleted or does not exist", entityID)
		return nil
	}
	return domain.Wrap(domain.ErrNamespaceDelete, err)
}

// EnsureIndex creates the configured index when it is missing.
func (s *NamespaceSynchronizer) EnsureIndex(ctx context.Context) error {
	names, err := s.index.ListIndexes(ctx)
	if err != nil {
		return domain.Wrap(domain.ErrIndexProvision, fmt.Errorf("list indexes: %w", err))
	}

	for _, name := range names {
		if name == s.spec.Name {
			return nil
		}
	}

	if err := s.index.CreateIndex(ctx, s.spec); err != nil {
		return domain.Wrap(domain.ErrIndexProvision, fmt.Errorf("create index %s: %w", s.spec.Name, err))
	}
	log.Printf("index %s created (dimension %d, metric %s)", s.spec.Name, s.spec.Dimension, s.spec.Metric)
	return nil
}

// Spec returns the index the synchronizer provisions.
func (s *NamespaceSynchronizer) Spec() domain.IndexSpec {
	return s.spec
}
