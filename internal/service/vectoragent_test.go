package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/datalens/internal/domain"
)

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// MockChunkRepo is a mock implementation of VectorChunkRepository
type MockChunkRepo struct {
	mock.Mock
}

func (m *MockChunkRepo) SearchSimilar(ctx context.Context, tenantID string, embedding []float32, k int, minScore float32, documentID string) ([]domain.ScoredChunk, error) {
	args := m.Called(ctx, tenantID, embedding, k, minScore, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredChunk), args.Error(1)
}

func TestVectorAgent_Retrieve(t *testing.T) {
	embedder := new(MockEmbedder)
	repo := new(MockChunkRepo)

	emb := []float32{0.1, 0.2}
	chunks := []domain.ScoredChunk{
		{Chunk: domain.DocumentChunk{Content: "vacation policy details"}, Similarity: 0.91},
		{Chunk: domain.DocumentChunk{Content: "pto accrual"}, Similarity: 0.54},
	}
	embedder.On("Embed", mock.Anything, "what is the vacation policy?").Return(emb, nil)
	repo.On("SearchSimilar", mock.Anything, "t1", emb, 5, float32(0.25), "").Return(chunks, nil)

	agent := NewVectorAgent(embedder, repo, DefaultVectorAgentConfig())
	result, err := agent.Retrieve(context.Background(), "t1", "what is the vacation policy?", "")

	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, float32(0.91), result.Chunks[0].Similarity)
}

func TestVectorAgent_Retrieve_EmptyIsValid(t *testing.T) {
	embedder := new(MockEmbedder)
	repo := new(MockChunkRepo)

	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	repo.On("SearchSimilar", mock.Anything, "t1", mock.Anything, 5, float32(0.25), "").
		Return([]domain.ScoredChunk{}, nil)

	agent := NewVectorAgent(embedder, repo, DefaultVectorAgentConfig())
	result, err := agent.Retrieve(context.Background(), "t1", "unrelated question", "")

	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}

func TestVectorAgent_Retrieve_EmptyQuestion(t *testing.T) {
	agent := NewVectorAgent(new(MockEmbedder), new(MockChunkRepo), DefaultVectorAgentConfig())

	_, err := agent.Retrieve(context.Background(), "t1", "   ", "")

	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
}

func TestVectorAgent_Retrieve_EmbeddingFailure(t *testing.T) {
	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))

	agent := NewVectorAgent(embedder, new(MockChunkRepo), DefaultVectorAgentConfig())
	_, err := agent.Retrieve(context.Background(), "t1", "a question", "")

	require.Error(t, err)
	var domainErr *domain.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeEmbeddingFailed, domainErr.Code)
}

func TestVectorAgent_RetrieveBroadened_DropsScoreFloor(t *testing.T) {
	embedder := new(MockEmbedder)
	repo := new(MockChunkRepo)

	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	repo.On("SearchSimilar", mock.Anything, "t1", mock.Anything, 5, float32(0), "").
		Return([]domain.ScoredChunk{{Similarity: 0.12}}, nil)

	agent := NewVectorAgent(embedder, repo, DefaultVectorAgentConfig())
	result, err := agent.RetrieveBroadened(context.Background(), "t1", "a question", "")

	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	repo.AssertExpectations(t)
}

func TestVectorAgent_Retrieve_DocumentScoped(t *testing.T) {
	embedder := new(MockEmbedder)
	repo := new(MockChunkRepo)

	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	repo.On("SearchSimilar", mock.Anything, "t1", mock.Anything, 5, float32(0.25), "doc-42").
		Return([]domain.ScoredChunk{}, nil)

	agent := NewVectorAgent(embedder, repo, DefaultVectorAgentConfig())
	_, err := agent.Retrieve(context.Background(), "t1", "a question", "doc-42")

	require.NoError(t, err)
	repo.AssertExpectations(t)
}
