package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/datalens/internal/api"
	"github.com/cloo-solutions/datalens/internal/api/middleware"
	"github.com/cloo-solutions/datalens/internal/domain"
	"github.com/cloo-solutions/datalens/internal/service"
)

type QueryService interface {
	Ask(ctx context.Context, req service.AskRequest) (*domain.Answer, error)
}

type QueryHandler struct {
	svc QueryService
}

func NewQueryHandler(svc QueryService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type QueryRequest struct {
	Question     string `json:"question"`
	ConnectionID string `json:"connection_id,omitempty"`
	Mode         string `json:"mode,omitempty"`
	DocumentID   string `json:"document_id,omitempty"`
}

type QueryResponse struct {
	Success    bool                  `json:"success"`
	Answer     string                `json:"answer"`
	Intent     string                `json:"intent"`
	SQLResults *domain.SQLResult     `json:"sql_results,omitempty"`
	Documents  *domain.VectorResult  `json:"vector_results,omitempty"`
	Routing    []domain.RoutingStep  `json:"routing"`
	ElapsedMS  int64                 `json:"elapsed_ms"`
}

// Ask handles POST /query
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode, err := domain.ParseQueryMode(req.Mode)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	answer, err := h.svc.Ask(r.Context(), service.AskRequest{
		TenantID:     middleware.GetTenantID(r.Context()),
		ConnectionID: req.ConnectionID,
		Question:     req.Question,
		Mode:         mode,
		DocumentID:   req.DocumentID,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, QueryResponse{
		Success:    answer.Success,
		Answer:     answer.Text,
		Intent:     string(answer.Intent),
		SQLResults: answer.SQLResult,
		Documents:  answer.VectorResult,
		Routing:    answer.Routing,
		ElapsedMS:  answer.Elapsed.Milliseconds(),
	})
}
