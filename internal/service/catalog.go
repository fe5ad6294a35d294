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
	"github.com/cloo-solutions/datalens/internal/warehouse"
)

// Generator defines the text-generation calls services depend on.
type Generator interface {
	GenerateWithSystem(ctx context.Context, system, prompt string) (string, error)
}

// CatalogRepository defines the repository interface for catalog entries.
type CatalogRepository interface {
	Upsert(ctx context.Context, m *domain.TableMetadata) error
	Get(ctx context.Context, tenantID, connectionID, schema, table string) (*domain.TableMetadata, error)
	SearchSimilar(ctx context.Context, tenantID, connectionID string, embedding []float32, k int, minScore float32) ([]*domain.TableMetadata, error)
	SearchKeyword(ctx context.Context, tenantID, connectionID, query string, k int) ([]*domain.TableMetadata, error)
}

// CatalogConnectionRepository resolves tenant connections.
type CatalogConnectionRepository interface {
	Get(ctx context.Context, tenantID, connectionID string) (*domain.Connection, error)
}

// StoreProvider opens the warehouse adapter for a connection.
type StoreProvider interface {
	Store(conn *domain.Connection) (warehouse.Store, error)
}

// CatalogConfig bounds catalog behavior.
type CatalogConfig struct {
	MaxTables  int
	MinScore   float32
	SampleRows int
	TTL        time.Duration
}

// DefaultCatalogConfig provides sane defaults for the catalog.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		MaxTables:  5,
		MinScore:   0.30,
		SampleRows: 3,
		TTL:        24 * time.Hour,
	}
}

// CatalogService maintains the semantic table catalog: it introspects tenant
// databases, generates table descriptions, embeds them, and ranks tables
// against natural-language questions.
type CatalogService struct {
	repo      CatalogRepository
	connRepo  CatalogConnectionRepository
	stores    StoreProvider
	embedder  Embedder
	generator Generator
	cfg       CatalogConfig
}

// NewCatalogService creates a new CatalogService instance.
func NewCatalogService(
	repo CatalogRepository,
	connRepo CatalogConnectionRepository,
	stores StoreProvider,
	embedder Embedder,
	generator Generator,
	cfg CatalogConfig,
) *CatalogService {
	if cfg.MaxTables <= 0 {
		cfg = DefaultCatalogConfig()
	}
	return &CatalogService{
		repo:      repo,
		connRepo:  connRepo,
		stores:    stores,
		embedder:  embedder,
		generator: generator,
		cfg:       cfg,
	}
}

const describeTableSystem = `You are a data analyst documenting database tables. ` +
	`Given a table's schema and sample rows, respond in exactly this format:

DESCRIPTION: <one or two sentences describing what the table stores and what it is used for>
EXAMPLE_QUESTIONS:
- <a question a business user might ask that this table can answer>
- <another such question>

Provide between 2 and 5 example questions. No other text.`

// Sync refreshes catalog entries for a connection. With no explicit table
// list every base table in the connection's schema is synced. One table
// failing does not abort the batch; failures are reported per table. Entries
// synced within the TTL are skipped unless force is set.
func (s *CatalogService) Sync(ctx context.Context, tenantID, connectionID string, tables []string, force bool) (*domain.SyncReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "CatalogService.Sync", telemetry.SpanAttributes{
		TenantID:     tenantID,
		ConnectionID: connectionID,
		Operation:    "sync",
	})
	defer span.End()

	conn, err := s.connRepo.Get(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}

	store, err := s.stores.Store(conn)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExecutionFailed, "failed to open connection", err)
	}

	if len(tables) == 0 {
		tables, err = store.ListTables(ctx, conn.SchemaName)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExecutionFailed, "failed to list tables", err)
		}
	}

	report := &domain.SyncReport{}
	now := time.Now().UTC()
	for _, table := range tables {
		if !force {
			existing, err := s.repo.Get(ctx, tenantID, connectionID, conn.SchemaName, table)
			if err == nil && !existing.IsStale(s.cfg.TTL, now) {
				report.Synced = append(report.Synced, table)
				continue
			}
		}
		if err := s.syncTable(ctx, conn, store, table); err != nil {
			log.Printf("catalog: sync failed for table %s: %v", table, err)
			report.AddFailure(table, err)
			continue
		}
		report.Synced = append(report.Synced, table)
	}
	return report, nil
}

func (s *CatalogService) syncTable(ctx context.Context, conn *domain.Connection, store warehouse.Store, table string) error {
	columns, err := store.TableColumns(ctx, conn.SchemaName, table)
	if err != nil {
		return err
	}

	sampleRows, err := store.SampleRows(ctx, conn.SchemaName, table, s.cfg.SampleRows)
	if err != nil {
		// Sample rows enrich the description but are not required for it.
		log.Printf("catalog: sampling %s failed: %v", table, err)
		sampleRows = nil
	}

	entry := &domain.TableMetadata{
		ID:           uuid.NewString(),
		TenantID:     conn.TenantID,
		ConnectionID: conn.ID,
		SchemaName:   conn.SchemaName,
		TableName:    table,
		Columns:      columns,
		SampleRows:   sampleRows,
		LastSyncedAt: time.Now().UTC(),
	}

	description, questions, err := s.describeTable(ctx, entry)
	if err != nil {
		return fmt.Errorf("describe table: %w", err)
	}
	entry.Description = description
	entry.ExampleQs = questions

	embedding, err := s.embedder.Embed(ctx, entry.EmbeddingText())
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailed, "failed to embed table description", err)
	}
	entry.Embedding = embedding

	return s.repo.Upsert(ctx, entry)
}

func (s *CatalogService) describeTable(ctx context.Context, entry *domain.TableMetadata) (string, []string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\nColumns:\n", entry.QualifiedName())
	for _, col := range entry.Columns {
		fmt.Fprintf(&b, "  - %s %s", col.Name, col.DataType)
		if col.IsPK {
			b.WriteString(" (primary key)")
		}
		if !col.Nullable {
			b.WriteString(" not null")
		}
		b.WriteString("\n")
	}
	if len(entry.SampleRows) > 0 {
		b.WriteString("Sample rows:\n")
		for _, row := range entry.SampleRows {
			fmt.Fprintf(&b, "  %v\n", row)
		}
	}

	raw, err := s.generator.GenerateWithSystem(ctx, describeTableSystem, b.String())
	if err != nil {
		return "", nil, err
	}

	description, questions := parseTableDescription(raw)
	if description == "" {
		return "", nil, domain.ErrGenerationFailed
	}
	return description, questions, nil
}

// parseTableDescription extracts the DESCRIPTION line and the
// EXAMPLE_QUESTIONS list from a model response. Unknown lines are ignored so
// minor format drift does not fail the sync.
func parseTableDescription(raw string) (string, []string) {
	var description string
	var questions []string
	inQuestions := false

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "DESCRIPTION:"):
			description = strings.TrimSpace(strings.TrimPrefix(line, "DESCRIPTION:"))
			inQuestions = false
		case strings.HasPrefix(line, "EXAMPLE_QUESTIONS:"):
			inQuestions = true
		case inQuestions && strings.HasPrefix(line, "- "):
			q := strings.TrimSpace(strings.TrimPrefix(line, "- "))
			if q != "" {
				questions = append(questions, q)
			}
		}
	}
	return description, questions
}

// Discover ranks cataloged tables against a question and returns at most
// k tables scoring at least the configured minimum. An empty slice is a
// valid result. Entries past the sync TTL are flagged stale but still
// returned; staleness never blocks discovery.
func (s *CatalogService) Discover(ctx context.Context, tenantID, connectionID, question string) ([]*domain.TableMetadata, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrEmptyQuestion
	}

	embedding, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailed, "failed to embed question", err)
	}

	results, err := s.repo.SearchSimilar(ctx, tenantID, connectionID, embedding, s.cfg.MaxTables, s.cfg.MinScore)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, m := range results {
		m.Stale = m.IsStale(s.cfg.TTL, now)
	}
	return results, nil
}

// DiscoverWithFallback behaves like Discover but falls back to a keyword
// match over table names and descriptions when vector search finds nothing.
// Fallback hits carry a zero similarity so callers can tell them apart.
func (s *CatalogService) DiscoverWithFallback(ctx context.Context, tenantID, connectionID, question string) ([]*domain.TableMetadata, error) {
	results, err := s.Discover(ctx, tenantID, connectionID, question)
	if err != nil || len(results) > 0 {
		return results, err
	}

	for _, term := range keywordTerms(question) {
		hits, err := s.repo.SearchKeyword(ctx, tenantID, connectionID, term, s.cfg.MaxTables)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}
	return nil, nil
}

// keywordTerms extracts candidate lookup terms from a question, longest
// first, skipping short filler words.
func keywordTerms(question string) []string {
	fields := strings.Fields(strings.ToLower(question))
	var terms []string
	for _, f := range fields {
		f = strings.Trim(f, ".,?!\"'")
		if len(f) >= 4 {
			terms = append(terms, f)
		}
	}
	for i := 0; i < len(terms); i++ {
		for j := i + 1; j < len(terms); j++ {
			if len(terms[j]) > len(terms[i]) {
				terms[i], terms[j] = terms[j], terms[i]
			}
		}
	}
	return terms
}
