package service

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/cloo-solutions/kbindex/internal/pagination"
	"github.com/stretchr/testify/mock"
)

// MockEmbeddingClient mocks the embedding provider
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// MockVectorIndex mocks the vector index service
type MockVectorIndex struct {
	mock.Mock
}

func (m *MockVectorIndex) ListIndexes(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockVectorIndex) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	args := m.Called(ctx, spec)
	return args.Error(0)
}

func (m *MockVectorIndex) DeleteNamespace(ctx context.Context, indexName, namespace string) error {
	args := m.Called(ctx, indexName, namespace)
	return args.Error(0)
}

func (m *MockVectorIndex) Upsert(ctx context.Context, indexName, namespace string, records []domain.IndexRecord) error {
	args := m.Called(ctx, indexName, namespace, records)
	return args.Error(0)
}

// MockIndexJobRepo mocks the index job repository
type MockIndexJobRepo struct {
	mock.Mock
}

func (m *MockIndexJobRepo) Create(ctx context.Context, job *domain.IndexJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockIndexJobRepo) GetByID(ctx context.Context, id string) (*domain.IndexJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexJob), args.Error(1)
}

func (m *MockIndexJobRepo) ListByEntity(ctx context.Context, entityID string, cursor *pagination.Cursor, limit int) ([]*domain.IndexJob, error) {
	args := m.Called(ctx, entityID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IndexJob), args.Error(1)
}

func (m *MockIndexJobRepo) SupersedePending(ctx context.Context, entityID string) (int64, error) {
	args := m.Called(ctx, entityID)
	return args.Get(0).(int64), args.Error(1)
}

// MockRunRecorder mocks the run log
type MockRunRecorder struct {
	mock.Mock
}

func (m *MockRunRecorder) RecordRun(ctx context.Context, result *domain.IndexResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

// hashEmbedder returns deterministic vectors derived from an MD5 of each text.
type hashEmbedder struct {
	dimensions int

	mu    sync.Mutex
	calls int
}

func (e *hashEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		hash := md5.Sum([]byte(text))
		v := make([]float32, e.dimensions)
		for d := range v {
			idx := (d * 4) % (len(hash) - 4)
			seed := binary.LittleEndian.Uint32(hash[idx : idx+4])
			v[d] = float32(seed%1000) / 1000.0
		}
		out[i] = v
	}
	return out, nil
}

// memoryIndex is an in-memory vector index keyed by index name and namespace.
type memoryIndex struct {
	mu         sync.Mutex
	indexes    map[string]domain.IndexSpec
	namespaces map[string]map[string]domain.IndexRecord

	deleteErr error
	upsertErr error
	deletes   int
	upserts   int
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{
		indexes:    map[string]domain.IndexSpec{},
		namespaces: map[string]map[string]domain.IndexRecord{},
	}
}

func (m *memoryIndex) ListIndexes(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.indexes))
	for name := range m.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryIndex) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[spec.Name] = spec
	return nil
}

func (m *memoryIndex) DeleteNamespace(ctx context.Context, indexName, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	key := indexName + "/" + namespace
	if _, ok := m.namespaces[key]; !ok {
		return domain.ErrNamespaceNotFound
	}
	delete(m.namespaces, key)
	return nil
}

func (m *memoryIndex) Upsert(ctx context.Context, indexName, namespace string, records []domain.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	key := indexName + "/" + namespace
	ns, ok := m.namespaces[key]
	if !ok {
		ns = map[string]domain.IndexRecord{}
		m.namespaces[key] = ns
	}
	for _, r := range records {
		ns[r.ID] = r
	}
	return nil
}

func (m *memoryIndex) records(indexName, namespace string) []domain.IndexRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.namespaces[indexName+"/"+namespace]
	out := make([]domain.IndexRecord, 0, len(ns))
	for _, r := range ns {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
