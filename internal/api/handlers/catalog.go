package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/datalens/internal/api"
	"github.com/cloo-solutions/datalens/internal/api/middleware"
	"github.com/cloo-solutions/datalens/internal/domain"
)

type CatalogService interface {
	Sync(ctx context.Context, tenantID, connectionID string, tables []string, force bool) (*domain.SyncReport, error)
	Discover(ctx context.Context, tenantID, connectionID, question string) ([]*domain.TableMetadata, error)
}

type CatalogHandler struct {
	svc CatalogService
}

func NewCatalogHandler(svc CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

type SyncRequest struct {
	ConnectionID string   `json:"connection_id"`
	Tables       []string `json:"tables,omitempty"`
	Force        bool     `json:"force,omitempty"`
}

// Sync handles POST /catalog/sync
func (h *CatalogHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConnectionID == "" {
		api.HandleError(w, domain.ErrMissingConnection)
		return
	}

	report, err := h.svc.Sync(r.Context(), middleware.GetTenantID(r.Context()), req.ConnectionID, req.Tables, req.Force)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, report)
}

type DiscoverResponse struct {
	Tables []*DiscoveredTable `json:"tables"`
}

type DiscoveredTable struct {
	SchemaName string             `json:"schema_name"`
	TableName  string             `json:"table_name"`
	Columns    []domain.ColumnDef `json:"columns"`
	Description string            `json:"description,omitempty"`
	Similarity float32            `json:"similarity"`
	Stale      bool               `json:"stale,omitempty"`
}

// Discover handles GET /catalog/discover?connection_id=...&question=...
func (h *CatalogHandler) Discover(w http.ResponseWriter, r *http.Request) {
	connectionID := r.URL.Query().Get("connection_id")
	question := r.URL.Query().Get("question")
	if connectionID == "" {
		api.HandleError(w, domain.ErrMissingConnection)
		return
	}

	tables, err := h.svc.Discover(r.Context(), middleware.GetTenantID(r.Context()), connectionID, question)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := DiscoverResponse{Tables: make([]*DiscoveredTable, 0, len(tables))}
	for _, t := range tables {
		resp.Tables = append(resp.Tables, &DiscoveredTable{
			SchemaName:  t.SchemaName,
			TableName:   t.TableName,
			Columns:     t.Columns,
			Description: t.Description,
			Similarity:  t.Similarity,
			Stale:       t.Stale,
		})
	}
	api.Success(w, http.StatusOK, resp)
}
