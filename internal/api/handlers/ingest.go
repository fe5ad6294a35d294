package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/datalens/internal/api"
	"github.com/cloo-solutions/datalens/internal/api/middleware"
	"github.com/cloo-solutions/datalens/internal/domain"
)

type IngestService interface {
	Ingest(ctx context.Context, tenantID, content string, metadata map[string]string) (*domain.IngestResult, error)
}

type IngestHandler struct {
	svc IngestService
}

func NewIngestHandler(svc IngestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

type IngestRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Ingest handles POST /ingest
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Ingest(r.Context(), middleware.GetTenantID(r.Context()), req.Content, req.Metadata)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	status := http.StatusCreated
	if len(result.FailedChunks) > 0 {
		// Some chunks stored, some not. 207 tells the caller to retry.
		status = http.StatusMultiStatus
	}
	api.Success(w, status, result)
}
