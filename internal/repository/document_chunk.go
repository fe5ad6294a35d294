package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/datalens/internal/domain"
)

// DocumentChunkRepository stores embedded document chunks and retrieves the
// nearest ones for a query embedding.
type DocumentChunkRepository struct {
	db dbtx
}

func NewDocumentChunkRepository(pool *pgxpool.Pool) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: pool}
}

func NewDocumentChunkRepositoryWithTx(tx pgx.Tx) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: tx}
}

func (r *DocumentChunkRepository) Insert(ctx context.Context, c *domain.DocumentChunk) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO document_chunks
			(id, tenant_id, document_id, chunk_index, content, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (document_id, chunk_index) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`,
		c.ID, c.TenantID, c.DocumentID, c.ChunkIndex, c.Content, metadata,
		pgvector.NewVector(c.Embedding), createdAt,
	)
	return err
}

// SearchSimilar returns up to k chunks for the tenant ordered by cosine
// similarity, dropping chunks below minScore. Pass documentID to restrict
// the search to a single document.
func (r *DocumentChunkRepository) SearchSimilar(ctx context.Context, tenantID string, embedding []float32, k int, minScore float32, documentID string) ([]domain.ScoredChunk, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, document_id, chunk_index, content, metadata, created_at,
		       1 - (embedding <=> $2) AS similarity
		FROM document_chunks
		WHERE tenant_id = $1
		  AND ($5 = '' OR document_id = $5)
		  AND 1 - (embedding <=> $2) >= $3
		ORDER BY embedding <=> $2, document_id, chunk_index
		LIMIT $4`,
		tenantID, vec, minScore, k, documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ScoredChunk
	for rows.Next() {
		var c domain.DocumentChunk
		var metadata []byte
		var similarity float32
		if err := rows.Scan(&c.ID, &c.TenantID, &c.DocumentID, &c.ChunkIndex,
			&c.Content, &metadata, &c.CreatedAt, &similarity); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, err
			}
		}
		results = append(results, domain.ScoredChunk{Chunk: c, Similarity: similarity})
	}
	return results, rows.Err()
}

// CountByDocument reports how many chunks a document has.
func (r *DocumentChunkRepository) CountByDocument(ctx context.Context, tenantID, documentID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE tenant_id = $1 AND document_id = $2`,
		tenantID, documentID,
	).Scan(&count)
	return count, err
}

// DeleteByDocument removes every chunk of a document.
func (r *DocumentChunkRepository) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE tenant_id = $1 AND document_id = $2`,
		tenantID, documentID,
	)
	return err
}
