package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/kbindex/internal/domain"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps domain errors to HTTP status codes
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation, domain.ErrCodeEmptyContent, domain.ErrCodeInvalidVectorBatch:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeEmbeddingProvider, domain.ErrCodeNamespaceDelete, domain.ErrCodeIndexWrite:
		return http.StatusBadGateway
	case domain.ErrCodeIndexProvision:
		return http.StatusServiceUnavailable
	case domain.ErrCodePipeline, domain.ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes an appropriate error response based on the error type
func HandleError(w http.ResponseWriter, err error) {
	status := DomainErrorToHTTP(err)
	JSON(w, status, ErrorResponse{Error: err.Error(), Code: domain.ErrorCode(err)})
}

// Result writes a pipeline result. Failed runs carry the status mapped from
// their error so callers still get the run log entry in the body.
func Result(w http.ResponseWriter, result *domain.IndexResult, err error) {
	if result == nil {
		HandleError(w, err)
		return
	}
	if err != nil {
		JSON(w, DomainErrorToHTTP(err), SuccessResponse{Data: result})
		return
	}
	Success(w, http.StatusOK, result)
}
