package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/kbindex/internal/api"
	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/go-chi/chi/v5"
)

type Indexer interface {
	Index(ctx context.Context, entityID, text string) (*domain.IndexResult, error)
	DeleteIndex(ctx context.Context, entityID string) (*domain.IndexResult, error)
}

// RecordLister reads back the records stored for one entity.
type RecordLister interface {
	ListNamespace(ctx context.Context, indexName, namespace string) ([]domain.IndexRecord, error)
}

type IndexHandler struct {
	indexer   Indexer
	records   RecordLister
	indexName string
}

// NewIndexHandler creates an IndexHandler. records may be nil when the
// vector backend cannot list a namespace.
func NewIndexHandler(indexer Indexer, records RecordLister, indexName string) *IndexHandler {
	return &IndexHandler{indexer: indexer, records: records, indexName: indexName}
}

type IndexRequest struct {
	Text string `json:"text"`
}

type DeleteNamespaceRequest struct {
	NamespaceID string `json:"namespaceId"`
}

type RecordResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Dimension int    `json:"dimension"`
}

// Index replaces the entity's namespace with freshly embedded chunks.
func (h *IndexHandler) Index(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	if entityID == "" {
		api.Error(w, http.StatusBadRequest, "entity id is required")
		return
	}

	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.indexer.Index(r.Context(), entityID, req.Text)
	api.Result(w, result, err)
}

func (h *IndexHandler) Delete(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	if entityID == "" {
		api.Error(w, http.StatusBadRequest, "entity id is required")
		return
	}

	result, err := h.indexer.DeleteIndex(r.Context(), entityID)
	api.Result(w, result, err)
}

// DeleteNamespace deletes by namespace id from the body.
func (h *IndexHandler) DeleteNamespace(w http.ResponseWriter, r *http.Request) {
	var req DeleteNamespaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NamespaceID == "" {
		api.Error(w, http.StatusBadRequest, "namespaceId is required")
		return
	}

	result, err := h.indexer.DeleteIndex(r.Context(), req.NamespaceID)
	api.Result(w, result, err)
}

func (h *IndexHandler) Records(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		api.Error(w, http.StatusNotImplemented, "vector backend does not support listing records")
		return
	}

	entityID := chi.URLParam(r, "entityID")
	records, err := h.records.ListNamespace(r.Context(), h.indexName, entityID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, RecordResponse{ID: rec.ID, Text: rec.Metadata.Text, Dimension: len(rec.Values)})
	}
	api.Success(w, http.StatusOK, resp)
}
