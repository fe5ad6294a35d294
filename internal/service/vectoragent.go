package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/datalens/internal/domain"
)

// VectorChunkRepository defines the retrieval interface for stored chunks.
type VectorChunkRepository interface {
	SearchSimilar(ctx context.Context, tenantID string, embedding []float32, k int, minScore float32, documentID string) ([]domain.ScoredChunk, error)
}

// VectorAgentConfig bounds vector retrieval.
type VectorAgentConfig struct {
	MaxResults int
	MinScore   float32
}

// DefaultVectorAgentConfig provides sane defaults for retrieval.
func DefaultVectorAgentConfig() VectorAgentConfig {
	return VectorAgentConfig{
		MaxResults: 5,
		MinScore:   0.25,
	}
}

// VectorAgent retrieves the document chunks nearest to a question. Retrieval
// never broadens on its own; widening the floor is an orchestrator decision.
type VectorAgent struct {
	embedder Embedder
	repo     VectorChunkRepository
	cfg      VectorAgentConfig
}

// NewVectorAgent creates a new VectorAgent instance.
func NewVectorAgent(embedder Embedder, repo VectorChunkRepository, cfg VectorAgentConfig) *VectorAgent {
	if cfg.MaxResults <= 0 {
		cfg = DefaultVectorAgentConfig()
	}
	return &VectorAgent{embedder: embedder, repo: repo, cfg: cfg}
}

// Retrieve returns the tenant's top chunks for a question above the score
// floor, best first. An empty result is a valid outcome. Pass documentID to
// search within a single document.
func (a *VectorAgent) Retrieve(ctx context.Context, tenantID, question, documentID string) (*domain.VectorResult, error) {
	return a.retrieve(ctx, tenantID, question, documentID, a.cfg.MinScore)
}

// RetrieveBroadened repeats retrieval with no score floor. The orchestrator
// uses it as a fallback when the strict pass found nothing.
func (a *VectorAgent) RetrieveBroadened(ctx context.Context, tenantID, question, documentID string) (*domain.VectorResult, error) {
	return a.retrieve(ctx, tenantID, question, documentID, 0)
}

func (a *VectorAgent) retrieve(ctx context.Context, tenantID, question, documentID string, minScore float32) (*domain.VectorResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrEmptyQuestion
	}

	embedding, err := a.embedder.Embed(ctx, question)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailed, "failed to embed question", err)
	}

	chunks, err := a.repo.SearchSimilar(ctx, tenantID, embedding, a.cfg.MaxResults, minScore, documentID)
	if err != nil {
		return nil, err
	}
	return &domain.VectorResult{Chunks: chunks}, nil
}
