package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/datalens/internal/domain"
	"github.com/cloo-solutions/datalens/internal/telemetry"
)

// Embedder defines the embedding calls services depend on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestChunkRepository defines the repository interface for storing chunks.
type IngestChunkRepository interface {
	Insert(ctx context.Context, chunk *domain.DocumentChunk) error
}

// DocumentArchiver stores raw document bodies out of band. Optional.
type DocumentArchiver interface {
	ArchiveDocument(ctx context.Context, tenantID, documentID string, content []byte) error
}

// IngestService splits documents into overlapping chunks, embeds them in
// batch, and stores them for retrieval.
type IngestService struct {
	embedder Embedder
	repo     IngestChunkRepository
	archiver DocumentArchiver
	chunkCfg ChunkConfig
}

// NewIngestService creates a new IngestService instance.
func NewIngestService(embedder Embedder, repo IngestChunkRepository) *IngestService {
	return &IngestService{
		embedder: embedder,
		repo:     repo,
		chunkCfg: DefaultChunkConfig(),
	}
}

// WithArchiver enables raw-document archiving on ingest.
func (s *IngestService) WithArchiver(archiver DocumentArchiver) *IngestService {
	s.archiver = archiver
	return s
}

// WithChunkConfig overrides the default chunking parameters.
func (s *IngestService) WithChunkConfig(cfg ChunkConfig) *IngestService {
	s.chunkCfg = cfg
	return s
}

// Ingest chunks and embeds a document for the tenant. A failed embedding for
// one chunk does not abort the run: stored chunks are kept and the failed
// indices are reported in the result. The run errors only when every chunk
// fails.
func (s *IngestService) Ingest(ctx context.Context, tenantID, content string, metadata map[string]string) (*domain.IngestResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyDocument
	}

	ctx, span := telemetry.StartSpan(ctx, "IngestService.Ingest", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: "ingest",
	})
	defer span.End()

	documentID := uuid.NewString()
	chunks := chunkText(content, s.chunkCfg)

	if s.archiver != nil {
		if err := s.archiver.ArchiveDocument(ctx, tenantID, documentID, []byte(content)); err != nil {
			log.Printf("ingest: archive failed for document %s: %v", documentID, err)
		}
	}

	embeddings, failed := s.embedChunks(ctx, chunks)

	result := &domain.IngestResult{
		DocumentID: documentID,
		IsChunked:  len(chunks) > 1,
	}
	now := time.Now().UTC()

	for i, chunk := range chunks {
		if failed[i] {
			result.FailedChunks = append(result.FailedChunks, i)
			continue
		}
		entry := &domain.DocumentChunk{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			DocumentID: documentID,
			ChunkIndex: i,
			Content:    chunk,
			Metadata:   metadata,
			Embedding:  embeddings[i],
			CreatedAt:  now,
		}
		if err := s.repo.Insert(ctx, entry); err != nil {
			result.FailedChunks = append(result.FailedChunks, i)
			log.Printf("ingest: store failed for chunk %d of document %s: %v", i, documentID, err)
			continue
		}
		result.ChunkIDs = append(result.ChunkIDs, entry.ID)
	}

	if len(result.ChunkIDs) == 0 {
		err := domain.NewDomainError(domain.ErrCodeEmbeddingFailed,
			fmt.Sprintf("all %d chunks of document %s failed", len(chunks), documentID))
		telemetry.CaptureError(ctx, err)
		return nil, err
	}
	return result, nil
}

// embedChunks embeds all chunks in one batch call; when the batch itself
// fails it retries chunk by chunk so a single bad chunk cannot sink the
// whole document. failed[i] marks chunks with no usable embedding.
func (s *IngestService) embedChunks(ctx context.Context, chunks []string) ([][]float32, map[int]bool) {
	failed := make(map[int]bool)

	embeddings, err := s.embedder.EmbedBatch(ctx, chunks)
	if err == nil {
		return embeddings, failed
	}
	log.Printf("ingest: batch embedding failed, retrying per chunk: %v", err)

	embeddings = make([][]float32, len(chunks))
	for i, chunk := range chunks {
		emb, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			failed[i] = true
			continue
		}
		embeddings[i] = emb
	}
	return embeddings, failed
}
