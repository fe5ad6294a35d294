package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/datalens/internal/domain"
)

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"validation", domain.ErrEmptyQuestion, http.StatusBadRequest},
		{"not found", domain.ErrConnectionNotFound, http.StatusNotFound},
		{"unauthorized", domain.ErrInvalidAPIKey, http.StatusUnauthorized},
		{"sql rejected", domain.ErrValidationRejected, http.StatusUnprocessableEntity},
		{"execution failed", domain.ErrExecutionFailed, http.StatusUnprocessableEntity},
		{"generation failed", domain.ErrGenerationFailed, http.StatusBadGateway},
		{"embedding failed", domain.ErrEmbeddingFailed, http.StatusBadGateway},
		{"upstream unavailable", domain.ErrUpstreamUnavailable, http.StatusBadGateway},
		{"discovery empty", domain.ErrNoRelevantTables, http.StatusNotFound},
		{"unknown code", domain.NewDomainError("SOMETHING_ELSE", "odd"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DomainErrorToHTTP(tt.err))
		})
	}
}

func TestHandleError_DomainError(t *testing.T) {
	rec := httptest.NewRecorder()

	HandleError(rec, domain.ErrEmptyQuestion)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "question cannot be empty", body.Error)
	assert.Equal(t, domain.ErrCodeValidation, body.Code)
}

func TestHandleError_WrappedDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	err := domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "answer synthesis failed", errors.New("dial tcp: refused"))

	HandleError(rec, err)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	// The cause stays server side; the client sees the message only.
	assert.Equal(t, "answer synthesis failed", body.Error)
}

func TestHandleError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()

	HandleError(rec, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "boom", body.Error)
	assert.Empty(t, body.Code)
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()

	Success(rec, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body SuccessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, map[string]interface{}{"id": "abc"}, body.Data)
}
