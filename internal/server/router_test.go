package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/datalens/internal/api/handlers"
	"github.com/cloo-solutions/datalens/internal/domain"
	"github.com/cloo-solutions/datalens/internal/service"
)

type routerQueryService struct {
	mock.Mock
}

func (m *routerQueryService) Ask(ctx context.Context, req service.AskRequest) (*domain.Answer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Answer), args.Error(1)
}

type routerIngestService struct {
	mock.Mock
}

func (m *routerIngestService) Ingest(ctx context.Context, tenantID, content string, metadata map[string]string) (*domain.IngestResult, error) {
	args := m.Called(ctx, tenantID, content, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestResult), args.Error(1)
}

type routerCatalogService struct {
	mock.Mock
}

func (m *routerCatalogService) Sync(ctx context.Context, tenantID, connectionID string, tables []string, force bool) (*domain.SyncReport, error) {
	args := m.Called(ctx, tenantID, connectionID, tables, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SyncReport), args.Error(1)
}

func (m *routerCatalogService) Discover(ctx context.Context, tenantID, connectionID, question string) ([]*domain.TableMetadata, error) {
	args := m.Called(ctx, tenantID, connectionID, question)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TableMetadata), args.Error(1)
}

func newTestRouter(query *routerQueryService) http.Handler {
	return NewRouter(RouterConfig{
		AuthValidator:  service.NewStaticKeyValidator("test-key:tenant-1"),
		QueryHandler:   handlers.NewQueryHandler(query),
		IngestHandler:  handlers.NewIngestHandler(new(routerIngestService)),
		CatalogHandler: handlers.NewCatalogHandler(new(routerCatalogService)),
	})
}

func TestRouter_HealthIsOpen(t *testing.T) {
	router := newTestRouter(new(routerQueryService))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Data["status"])
}

func TestRouter_QueryRequiresAuth(t *testing.T) {
	router := newTestRouter(new(routerQueryService))

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"q"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_QueryWithValidKey(t *testing.T) {
	query := new(routerQueryService)
	query.On("Ask", mock.Anything, mock.MatchedBy(func(req service.AskRequest) bool {
		return req.TenantID == "tenant-1" && req.Question == "how many orders?"
	})).Return(&domain.Answer{Success: true, Text: "9", Intent: domain.IntentSQL}, nil)

	router := newTestRouter(query)
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"how many orders?"}`))
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	query.AssertExpectations(t)
}

func TestRouter_IngestRequiresAuth(t *testing.T) {
	router := newTestRouter(new(routerQueryService))

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"content":"doc"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_CatalogRequiresAuth(t *testing.T) {
	router := newTestRouter(new(routerQueryService))

	req := httptest.NewRequest(http.MethodGet, "/catalog/discover?connection_id=c1&question=q", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_RequestIDPropagated(t *testing.T) {
	router := newTestRouter(new(routerQueryService))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
