package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/kbindex/internal/api"
	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/cloo-solutions/kbindex/internal/pagination"
	"github.com/cloo-solutions/kbindex/internal/service"
	"github.com/go-chi/chi/v5"
)

type IndexJobService interface {
	EnqueueIndex(ctx context.Context, entityID, text string) (*domain.IndexJob, error)
	EnqueueDelete(ctx context.Context, entityID string) (*domain.IndexJob, error)
	GetJob(ctx context.Context, id string) (*domain.IndexJob, error)
	ListJobs(ctx context.Context, input service.ListJobsInput) (*pagination.PageResult[*domain.IndexJob], error)
}

type IndexJobHandler struct {
	svc IndexJobService
}

func NewIndexJobHandler(svc IndexJobService) *IndexJobHandler {
	return &IndexJobHandler{svc: svc}
}

type EnqueueRequest struct {
	Text   string `json:"text"`
	Delete bool   `json:"delete"`
}

type IndexJobResponse struct {
	ID          string  `json:"id"`
	EntityID    string  `json:"entity_id"`
	Action      string  `json:"action"`
	Status      string  `json:"status"`
	Retries     int32   `json:"retries"`
	Error       string  `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
	ProcessedAt *string `json:"processed_at,omitempty"`
}

type IndexJobListResponse struct {
	Items   []*IndexJobResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

func indexJobToResponse(j *domain.IndexJob) *IndexJobResponse {
	resp := &IndexJobResponse{
		ID:        j.ID,
		EntityID:  j.EntityID,
		Action:    string(j.Action),
		Status:    string(j.Status),
		Retries:   j.Retries,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.UTC().Format(time.RFC3339),
	}
	if j.ProcessedAt != nil {
		processed := j.ProcessedAt.UTC().Format(time.RFC3339)
		resp.ProcessedAt = &processed
	}
	return resp
}

func (h *IndexJobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	if entityID == "" {
		api.Error(w, http.StatusBadRequest, "entity id is required")
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Delete && req.Text != "" {
		api.Error(w, http.StatusBadRequest, "text must be empty for delete jobs")
		return
	}

	var job *domain.IndexJob
	var err error
	if req.Delete {
		job, err = h.svc.EnqueueDelete(r.Context(), entityID)
	} else {
		job, err = h.svc.EnqueueIndex(r.Context(), entityID, req.Text)
	}
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, indexJobToResponse(job))
}

func (h *IndexJobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	job, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, indexJobToResponse(job))
}

func (h *IndexJobHandler) List(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	input := service.ListJobsInput{
		EntityID: entityID,
		Cursor:   r.URL.Query().Get("cursor"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		input.Limit = limit
	}

	page, err := h.svc.ListJobs(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := IndexJobListResponse{
		Items:   make([]*IndexJobResponse, 0, len(page.Items)),
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	}
	for _, j := range page.Items {
		resp.Items = append(resp.Items, indexJobToResponse(j))
	}
	api.Success(w, http.StatusOK, resp)
}
