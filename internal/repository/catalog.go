package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/datalens/internal/domain"
)

// CatalogRepository persists table metadata entries and ranks them by
// embedding similarity.
type CatalogRepository struct {
	db dbtx
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: pool}
}

func NewCatalogRepositoryWithTx(tx pgx.Tx) *CatalogRepository {
	return &CatalogRepository{db: tx}
}

// Upsert writes one catalog entry atomically. A concurrent Discover sees
// either the previous or the new version of the entry, never a partial one.
func (r *CatalogRepository) Upsert(ctx context.Context, m *domain.TableMetadata) error {
	columns, err := json.Marshal(m.Columns)
	if err != nil {
		return err
	}
	var sampleRows []byte
	if m.SampleRows != nil {
		sampleRows, err = json.Marshal(m.SampleRows)
		if err != nil {
			return err
		}
	}

	lastSynced := m.LastSyncedAt
	if lastSynced.IsZero() {
		lastSynced = time.Now().UTC()
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO table_metadata
			(id, tenant_id, connection_id, schema_name, table_name, columns,
			 description, example_questions, sample_rows, embedding, last_synced_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (tenant_id, connection_id, schema_name, table_name) DO UPDATE SET
			columns = EXCLUDED.columns,
			description = EXCLUDED.description,
			example_questions = EXCLUDED.example_questions,
			sample_rows = EXCLUDED.sample_rows,
			embedding = EXCLUDED.embedding,
			last_synced_at = EXCLUDED.last_synced_at`,
		m.ID, m.TenantID, m.ConnectionID, m.SchemaName, m.TableName, columns,
		m.Description, m.ExampleQs, sampleRows, pgvector.NewVector(m.Embedding), lastSynced,
	)
	return err
}

// Get returns one entry or domain.ErrTableNotCataloged.
func (r *CatalogRepository) Get(ctx context.Context, tenantID, connectionID, schema, table string) (*domain.TableMetadata, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, connection_id, schema_name, table_name, columns,
		       description, example_questions, sample_rows, last_synced_at, created_at
		FROM table_metadata
		WHERE tenant_id = $1 AND connection_id = $2 AND schema_name = $3 AND table_name = $4`,
		tenantID, connectionID, schema, table,
	)
	m, err := scanCatalogRow(row, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTableNotCataloged
		}
		return nil, err
	}
	return m, nil
}

// SearchSimilar ranks entries for a tenant+connection by cosine similarity
// to the query embedding and returns at most k entries scoring at least
// minScore. An empty result is a valid outcome, not an error.
func (r *CatalogRepository) SearchSimilar(ctx context.Context, tenantID, connectionID string, embedding []float32, k int, minScore float32) ([]*domain.TableMetadata, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, connection_id, schema_name, table_name, columns,
		       description, example_questions, sample_rows, last_synced_at, created_at,
		       1 - (embedding <=> $3) AS similarity
		FROM table_metadata
		WHERE tenant_id = $1 AND connection_id = $2 AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $3) >= $4
		ORDER BY embedding <=> $3, schema_name, table_name
		LIMIT $5`,
		tenantID, connectionID, vec, minScore, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.TableMetadata
	for rows.Next() {
		m, err := scanCatalogRow(rows, true)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// SearchKeyword is the fallback lookup when vector search finds nothing: a
// case-insensitive match over table names and descriptions. Hits carry a
// floor similarity so callers can distinguish them from real vector scores.
func (r *CatalogRepository) SearchKeyword(ctx context.Context, tenantID, connectionID, query string, k int) ([]*domain.TableMetadata, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, connection_id, schema_name, table_name, columns,
		       description, example_questions, sample_rows, last_synced_at, created_at,
		       0.0 AS similarity
		FROM table_metadata
		WHERE tenant_id = $1 AND connection_id = $2
		  AND (table_name ILIKE '%' || $3 || '%' OR description ILIKE '%' || $3 || '%')
		ORDER BY table_name
		LIMIT $4`,
		tenantID, connectionID, query, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.TableMetadata
	for rows.Next() {
		m, err := scanCatalogRow(rows, true)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// ListStale returns entries whose last sync is older than the TTL, used by
// the background refresh worker.
func (r *CatalogRepository) ListStale(ctx context.Context, ttl time.Duration, limit int) ([]*domain.TableMetadata, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, connection_id, schema_name, table_name, columns,
		       description, example_questions, sample_rows, last_synced_at, created_at
		FROM table_metadata
		WHERE last_synced_at < $1
		ORDER BY last_synced_at ASC
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.TableMetadata
	for rows.Next() {
		m, err := scanCatalogRow(rows, false)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func scanCatalogRow(row pgx.Row, withSimilarity bool) (*domain.TableMetadata, error) {
	var m domain.TableMetadata
	var columns []byte
	var sampleRows []byte

	dest := []any{
		&m.ID, &m.TenantID, &m.ConnectionID, &m.SchemaName, &m.TableName, &columns,
		&m.Description, &m.ExampleQs, &sampleRows, &m.LastSyncedAt, &m.CreatedAt,
	}
	if withSimilarity {
		dest = append(dest, &m.Similarity)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if len(columns) > 0 {
		if err := json.Unmarshal(columns, &m.Columns); err != nil {
			return nil, err
		}
	}
	if len(sampleRows) > 0 {
		if err := json.Unmarshal(sampleRows, &m.SampleRows); err != nil {
			return nil, err
		}
	}
	return &m, nil
}
