package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) Index(ctx context.Context, entityID, text string) (*domain.IndexResult, error) {
	args := m.Called(ctx, entityID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexResult), args.Error(1)
}

func (m *MockIndexer) DeleteIndex(ctx context.Context, entityID string) (*domain.IndexResult, error) {
	args := m.Called(ctx, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexResult), args.Error(1)
}

type MockRecordLister struct {
	mock.Mock
}

func (m *MockRecordLister) ListNamespace(ctx context.Context, indexName, namespace string) ([]domain.IndexRecord, error) {
	args := m.Called(ctx, indexName, namespace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.IndexRecord), args.Error(1)
}

// withURLParams attaches chi route params the way the router would.
func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

type resultBody struct {
	Data domain.IndexResult `json:"data"`
}

func TestIndexHandler_Index_Success(t *testing.T) {
	indexer := new(MockIndexer)
	handler := NewIndexHandler(indexer, nil, "knowledge-base")

	indexer.On("Index", mock.Anything, "job-42", "Remote role. Great team.").Return(&domain.IndexResult{
		RunID:      "run-1",
		EntityID:   "job-42",
		Success:    true,
		State:      domain.PipelineStateDone,
		Outcome:    domain.RunOutcomeSucceeded,
		ChunkCount: 2,
	}, nil)

	req := httptest.NewRequest(http.MethodPut, "/entities/job-42/index", bytes.NewBufferString(`{"text":"Remote role. Great team."}`))
	req = withURLParams(req, map[string]string{"entityID": "job-42"})
	w := httptest.NewRecorder()

	handler.Index(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body resultBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.Success)
	assert.Equal(t, 2, body.Data.ChunkCount)
	indexer.AssertExpectations(t)
}

func TestIndexHandler_Index_EmptyContent(t *testing.T) {
	indexer := new(MockIndexer)
	handler := NewIndexHandler(indexer, nil, "knowledge-base")

	indexer.On("Index", mock.Anything, "job-42", "").Return(&domain.IndexResult{
		EntityID:  "job-42",
		State:     domain.PipelineStateFailed,
		FailedIn:  domain.PipelineStateSegmenting,
		Outcome:   domain.RunOutcomeFailedBeforeDelete,
		ErrorCode: domain.ErrCodeEmptyContent,
	}, domain.ErrEmptyContent)

	req := httptest.NewRequest(http.MethodPut, "/entities/job-42/index", bytes.NewBufferString(`{"text":""}`))
	req = withURLParams(req, map[string]string{"entityID": "job-42"})
	w := httptest.NewRecorder()

	handler.Index(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body resultBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, domain.RunOutcomeFailedBeforeDelete, body.Data.Outcome)
	assert.Equal(t, domain.ErrCodeEmptyContent, body.Data.ErrorCode)
}

func TestIndexHandler_Index_FailedAfterDelete(t *testing.T) {
	indexer := new(MockIndexer)
	handler := NewIndexHandler(indexer, nil, "knowledge-base")

	indexer.On("Index", mock.Anything, "job-42", mock.Anything).Return(&domain.IndexResult{
		EntityID:         "job-42",
		Outcome:          domain.RunOutcomeFailedAfterDelete,
		NamespaceCleared: true,
	}, domain.Wrap(domain.ErrIndexWrite, errors.New("unavailable")))

	req := httptest.NewRequest(http.MethodPut, "/entities/job-42/index", bytes.NewBufferString(`{"text":"Some text."}`))
	req = withURLParams(req, map[string]string{"entityID": "job-42"})
	w := httptest.NewRecorder()

	handler.Index(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body resultBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.NamespaceCleared)
}

func TestIndexHandler_Index_InvalidBody(t *testing.T) {
	indexer := new(MockIndexer)
	handler := NewIndexHandler(indexer, nil, "knowledge-base")

	req := httptest.NewRequest(http.MethodPut, "/entities/job-42/index", bytes.NewBufferString(`{not json`))
	req = withURLParams(req, map[string]string{"entityID": "job-42"})
	w := httptest.NewRecorder()

	handler.Index(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	indexer.AssertNotCalled(t, "Index", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexHandler_Delete(t *testing.T) {
	indexer := new(MockIndexer)
	handler := NewIndexHandler(indexer, nil, "knowledge-base")

	indexer.On("DeleteIndex", mock.Anything, "job-42").Return(&domain.IndexResult{
		EntityID: "job-42",
		Success:  true,
		State:    domain.PipelineStateDone,
		Outcome:  domain.RunOutcomeSucceeded,
	}, nil)

	req := withURLParams(httptest.NewRequest(http.MethodDelete, "/entities/job-42/index", nil), map[string]string{"entityID": "job-42"})
	w := httptest.NewRecorder()

	handler.Delete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	indexer.AssertExpectations(t)
}

func TestIndexHandler_DeleteNamespace(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		indexer := new(MockIndexer)
		handler := NewIndexHandler(indexer, nil, "knowledge-base")
		indexer.On("DeleteIndex", mock.Anything, "job-42").Return(&domain.IndexResult{Success: true}, nil)

		req := httptest.NewRequest(http.MethodPost, "/namespaces/delete", bytes.NewBufferString(`{"namespaceId":"job-42"}`))
		w := httptest.NewRecorder()

		handler.DeleteNamespace(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		indexer.AssertExpectations(t)
	})

	t.Run("missing namespace id", func(t *testing.T) {
		indexer := new(MockIndexer)
		handler := NewIndexHandler(indexer, nil, "knowledge-base")

		req := httptest.NewRequest(http.MethodPost, "/namespaces/delete", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()

		handler.DeleteNamespace(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "namespaceId is required")
		indexer.AssertNotCalled(t, "DeleteIndex", mock.Anything, mock.Anything)
	})

	t.Run("provider failure", func(t *testing.T) {
		indexer := new(MockIndexer)
		handler := NewIndexHandler(indexer, nil, "knowledge-base")
		indexer.On("DeleteIndex", mock.Anything, "job-42").Return(&domain.IndexResult{
			Outcome: domain.RunOutcomeFailedBeforeDelete,
		}, domain.ErrNamespaceDelete)

		req := httptest.NewRequest(http.MethodPost, "/namespaces/delete", bytes.NewBufferString(`{"namespaceId":"job-42"}`))
		w := httptest.NewRecorder()

		handler.DeleteNamespace(w, req)

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestIndexHandler_Records(t *testing.T) {
	indexer := new(MockIndexer)
	lister := new(MockRecordLister)
	handler := NewIndexHandler(indexer, lister, "knowledge-base")

	lister.On("ListNamespace", mock.Anything, "knowledge-base", "job-42").Return([]domain.IndexRecord{
		{ID: "0", Values: []float32{0.1, 0.2, 0.3}, Metadata: domain.RecordMetadata{Text: "Remote role"}},
	}, nil)

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/entities/job-42/records", nil), map[string]string{"entityID": "job-42"})
	w := httptest.NewRecorder()

	handler.Records(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []RecordResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Remote role", body.Data[0].Text)
	assert.Equal(t, 3, body.Data[0].Dimension)
}

func TestIndexHandler_Records_Unsupported(t *testing.T) {
	handler := NewIndexHandler(new(MockIndexer), nil, "knowledge-base")

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/entities/job-42/records", nil), map[string]string{"entityID": "job-42"})
	w := httptest.NewRecorder()

	handler.Records(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
