package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError(ErrCodeValidation, "bad input")
	assert.Equal(t, "[VALIDATION_ERROR] bad input", err.Error())

	wrapped := NewDomainErrorWithCause(ErrCodeExecutionFailed, "query failed", errors.New("connection reset"))
	assert.Equal(t, "[EXECUTION_FAILED] query failed: connection reset", wrapped.Error())
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewDomainErrorWithCause(ErrCodeEmbeddingFailed, "embed failed", cause)

	assert.ErrorIs(t, err, cause)
}

func TestDomainError_ErrorsAsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("context: %w", ErrNoRelevantTables)

	var domainErr *DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, ErrCodeDiscoveryEmpty, domainErr.Code)
}
