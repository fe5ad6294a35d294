package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/datalens/internal/domain"
)

// MockIngestService is a mock implementation of IngestService
type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) Ingest(ctx context.Context, tenantID, content string, metadata map[string]string) (*domain.IngestResult, error) {
	args := m.Called(ctx, tenantID, content, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestResult), args.Error(1)
}

func TestIngestHandler_Ingest(t *testing.T) {
	svc := new(MockIngestService)
	svc.On("Ingest", mock.Anything, "t1", "doc body", map[string]string{"source": "upload"}).
		Return(&domain.IngestResult{DocumentID: "d1", ChunkIDs: []string{"ch1", "ch2"}, IsChunked: true}, nil)

	handler := NewIngestHandler(svc)
	req := authedRequest(http.MethodPost, "/ingest", `{"content":"doc body","metadata":{"source":"upload"}}`)
	rec := httptest.NewRecorder()
	handler.Ingest(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Data domain.IngestResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "d1", body.Data.DocumentID)
	assert.Len(t, body.Data.ChunkIDs, 2)
}

func TestIngestHandler_Ingest_PartialFailure(t *testing.T) {
	svc := new(MockIngestService)
	svc.On("Ingest", mock.Anything, "t1", mock.Anything, mock.Anything).
		Return(&domain.IngestResult{DocumentID: "d1", ChunkIDs: []string{"ch1"}, FailedChunks: []int{1}, IsChunked: true}, nil)

	handler := NewIngestHandler(svc)
	req := authedRequest(http.MethodPost, "/ingest", `{"content":"doc body"}`)
	rec := httptest.NewRecorder()
	handler.Ingest(rec, req)

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
}

func TestIngestHandler_Ingest_EmptyDocument(t *testing.T) {
	svc := new(MockIngestService)
	svc.On("Ingest", mock.Anything, "t1", "", mock.Anything).
		Return(nil, domain.ErrEmptyDocument)

	handler := NewIngestHandler(svc)
	req := authedRequest(http.MethodPost, "/ingest", `{"content":""}`)
	rec := httptest.NewRecorder()
	handler.Ingest(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestHandler_Ingest_InvalidBody(t *testing.T) {
	handler := NewIngestHandler(new(MockIngestService))

	req := authedRequest(http.MethodPost, "/ingest", "not json")
	rec := httptest.NewRecorder()
	handler.Ingest(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
