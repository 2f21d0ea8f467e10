package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testSpec() domain.IndexSpec {
	return domain.IndexSpec{Name: "knowledge-base", Dimension: 4, Cloud: "aws", Region: "us-east-1"}
}

func TestNewNamespaceSynchronizer_DefaultsMetric(t *testing.T) {
	s := NewNamespaceSynchronizer(new(MockVectorIndex), testSpec())
	assert.Equal(t, domain.MetricCosine, s.Spec().Metric)
}

func TestNamespaceSynchronizer_DeleteNamespace(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes", func(t *testing.T) {
		index := new(MockVectorIndex)
		index.On("DeleteNamespace", ctx, "knowledge-base", "job-42").Return(nil)

		err := NewNamespaceSynchronizer(index, testSpec()).DeleteNamespace(ctx, "job-42")

		require.NoError(t, err)
		index.AssertExpectations(t)
	})

	t.Run("missing namespace counts as deleted", func(t *testing.T) {
		index := new(MockVectorIndex)
		index.On("DeleteNamespace", ctx, "knowledge-base", "job-42").
			Return(fmt.Errorf("pgvector: %w", domain.ErrNamespaceNotFound))

		err := NewNamespaceSynchronizer(index, testSpec()).DeleteNamespace(ctx, "job-42")

		assert.NoError(t, err)
	})

	t.Run("other errors fail", func(t *testing.T) {
		index := new(MockVectorIndex)
		index.On("DeleteNamespace", ctx, "knowledge-base", "job-42").Return(errors.New("connection reset"))

		err := NewNamespaceSynchronizer(index, testSpec()).DeleteNamespace(ctx, "job-42")

		assert.ErrorIs(t, err, domain.ErrNamespaceDelete)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("empty entity id", func(t *testing.T) {
		index := new(MockVectorIndex)

		err := NewNamespaceSynchronizer(index, testSpec()).DeleteNamespace(ctx, "")

		assert.ErrorIs(t, err, domain.ErrNamespaceDelete)
		index.AssertNotCalled(t, "DeleteNamespace", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestNamespaceSynchronizer_EnsureIndex(t *testing.T) {
	ctx := context.Background()
	spec := testSpec()
	spec.Metric = domain.MetricCosine

	t.Run("index exists", func(t *testing.T) {
		index := new(MockVectorIndex)
		index.On("ListIndexes", ctx).Return([]string{"other", "knowledge-base"}, nil)

		err := NewNamespaceSynchronizer(index, spec).EnsureIndex(ctx)

		require.NoError(t, err)
		index.AssertNotCalled(t, "CreateIndex", mock.Anything, mock.Anything)
	})

	t.Run("index missing is created", func(t *testing.T) {
		index := new(MockVectorIndex)
		index.On("ListIndexes", ctx).Return([]string{"other"}, nil)
		index.On("CreateIndex", ctx, spec).Return(nil)

		err := NewNamespaceSynchronizer(index, spec).EnsureIndex(ctx)

		require.NoError(t, err)
		index.AssertExpectations(t)
	})

	t.Run("list fails", func(t *testing.T) {
		index := new(MockVectorIndex)
		index.On("ListIndexes", ctx).Return(nil, errors.New("unauthorized"))

		err := NewNamespaceSynchronizer(index, spec).EnsureIndex(ctx)

		assert.ErrorIs(t, err, domain.ErrIndexProvision)
	})

	t.Run("create fails", func(t *testing.T) {
		index := new(MockVectorIndex)
		index.On("ListIndexes", ctx).Return([]string{}, nil)
		index.On("CreateIndex", ctx, spec).Return(errors.New("quota exceeded"))

		err := NewNamespaceSynchronizer(index, spec).EnsureIndex(ctx)

		assert.ErrorIs(t, err, domain.ErrIndexProvision)
		assert.Contains(t, err.Error(), "quota exceeded")
	})
}
