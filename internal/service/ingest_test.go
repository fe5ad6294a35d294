package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/datalens/internal/domain"
)

// MockIngestChunkRepo is a mock implementation of IngestChunkRepository
type MockIngestChunkRepo struct {
	mock.Mock
}

func (m *MockIngestChunkRepo) Insert(ctx context.Context, chunk *domain.DocumentChunk) error {
	args := m.Called(ctx, chunk)
	return args.Error(0)
}

// MockArchiver is a mock implementation of DocumentArchiver
type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) ArchiveDocument(ctx context.Context, tenantID, documentID string, content []byte) error {
	args := m.Called(ctx, tenantID, documentID, content)
	return args.Error(0)
}

func smallChunkConfig() ChunkConfig {
	return ChunkConfig{TargetChars: 40, Tolerance: 10, Overlap: 8, MaxChunks: 50}
}

func TestIngestService_Ingest_EmptyDocument(t *testing.T) {
	svc := NewIngestService(new(MockEmbedder), new(MockIngestChunkRepo))

	_, err := svc.Ingest(context.Background(), "t1", "   \n ", nil)

	assert.ErrorIs(t, err, domain.ErrEmptyDocument)
}

func TestIngestService_Ingest_SingleChunk(t *testing.T) {
	embedder := new(MockEmbedder)
	repo := new(MockIngestChunkRepo)

	embedder.On("EmbedBatch", mock.Anything, []string{"a short note"}).
		Return([][]float32{{0.1, 0.2}}, nil)
	repo.On("Insert", mock.Anything, mock.MatchedBy(func(c *domain.DocumentChunk) bool {
		return c.TenantID == "t1" && c.ChunkIndex == 0 && c.Content == "a short note"
	})).Return(nil)

	svc := NewIngestService(embedder, repo)
	result, err := svc.Ingest(context.Background(), "t1", "a short note", map[string]string{"source": "note.txt"})

	require.NoError(t, err)
	assert.NotEmpty(t, result.DocumentID)
	assert.False(t, result.IsChunked)
	assert.Len(t, result.ChunkIDs, 1)
	assert.Empty(t, result.FailedChunks)
}

func TestIngestService_Ingest_MultipleChunks(t *testing.T) {
	embedder := new(MockEmbedder)
	repo := new(MockIngestChunkRepo)

	content := strings.Repeat("Sentence one here. ", 10)
	chunks := chunkText(content, smallChunkConfig())
	require.Greater(t, len(chunks), 1)
	embeddings := make([][]float32, len(chunks))
	for i := range embeddings {
		embeddings[i] = []float32{float32(i)}
	}
	embedder.On("EmbedBatch", mock.Anything, chunks).Return(embeddings, nil)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	svc := NewIngestService(embedder, repo).WithChunkConfig(smallChunkConfig())
	result, err := svc.Ingest(context.Background(), "t1", content, nil)

	require.NoError(t, err)
	assert.True(t, result.IsChunked)
	assert.Greater(t, len(result.ChunkIDs), 1)
	repo.AssertNumberOfCalls(t, "Insert", len(result.ChunkIDs))
}

func TestIngestService_Ingest_BatchFailureFallsBackPerChunk(t *testing.T) {
	embedder := new(MockEmbedder)
	repo := new(MockIngestChunkRepo)

	content := strings.Repeat("Another sentence here. ", 10)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).
		Return(nil, errors.New("batch too large"))
	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.5}, nil)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	svc := NewIngestService(embedder, repo).WithChunkConfig(smallChunkConfig())
	result, err := svc.Ingest(context.Background(), "t1", content, nil)

	require.NoError(t, err)
	assert.Empty(t, result.FailedChunks)
	assert.Greater(t, len(result.ChunkIDs), 1)
	embedder.AssertNumberOfCalls(t, "Embed", len(result.ChunkIDs))
}

func TestIngestService_Ingest_PartialEmbeddingFailure(t *testing.T) {
	embedder := new(MockEmbedder)
	repo := new(MockIngestChunkRepo)

	content := strings.Repeat("Words to fill a chunk boundary. ", 5)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).
		Return(nil, errors.New("batch failed"))
	// First per-chunk retry fails, the rest succeed.
	embedder.On("Embed", mock.Anything, mock.Anything).
		Return(nil, errors.New("rate limited")).Once()
	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.5}, nil)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	svc := NewIngestService(embedder, repo).WithChunkConfig(smallChunkConfig())
	result, err := svc.Ingest(context.Background(), "t1", content, nil)

	require.NoError(t, err)
	assert.Equal(t, []int{0}, result.FailedChunks)
	assert.NotEmpty(t, result.ChunkIDs)
}

func TestIngestService_Ingest_AllChunksFailed(t *testing.T) {
	embedder := new(MockEmbedder)
	repo := new(MockIngestChunkRepo)

	embedder.On("EmbedBatch", mock.Anything, mock.Anything).
		Return(nil, errors.New("provider down"))
	embedder.On("Embed", mock.Anything, mock.Anything).
		Return(nil, errors.New("provider down"))

	svc := NewIngestService(embedder, repo)
	_, err := svc.Ingest(context.Background(), "t1", "some document", nil)

	var domainErr *domain.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeEmbeddingFailed, domainErr.Code)
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestIngestService_Ingest_StoreFailureReportedPerChunk(t *testing.T) {
	embedder := new(MockEmbedder)
	repo := new(MockIngestChunkRepo)

	embedder.On("EmbedBatch", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}}, nil)
	repo.On("Insert", mock.Anything, mock.Anything).
		Return(errors.New("constraint violation"))

	svc := NewIngestService(embedder, repo)
	_, err := svc.Ingest(context.Background(), "t1", "one chunk only", nil)

	var domainErr *domain.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeEmbeddingFailed, domainErr.Code)
}

func TestIngestService_Ingest_ArchiverFailureIsBestEffort(t *testing.T) {
	embedder := new(MockEmbedder)
	repo := new(MockIngestChunkRepo)
	archiver := new(MockArchiver)

	embedder.On("EmbedBatch", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}}, nil)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	archiver.On("ArchiveDocument", mock.Anything, "t1", mock.Anything, []byte("archive me")).
		Return(errors.New("bucket unavailable"))

	svc := NewIngestService(embedder, repo).WithArchiver(archiver)
	result, err := svc.Ingest(context.Background(), "t1", "archive me", nil)

	require.NoError(t, err)
	assert.Len(t, result.ChunkIDs, 1)
	archiver.AssertExpectations(t)
}
