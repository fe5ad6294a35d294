// Package warehouse executes read queries against a connection's database
// and introspects its schema. Pools are shared across concurrent callers for
// the same connection and bounded in size.
package warehouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/cloo-solutions/datalens/internal/domain"
)

const (
	defaultMaxOpenConns = 10
	defaultMaxIdleConns = 2
	defaultConnLifetime = 30 * time.Minute
)

// Store is the adapter over one tenant data source.
type Store interface {
	ListTables(ctx context.Context, schema string) ([]string, error)
	TableColumns(ctx context.Context, schema, table string) ([]domain.ColumnDef, error)
	SampleRows(ctx context.Context, schema, table string, limit int) ([]map[string]any, error)
	ExecuteSelect(ctx context.Context, query string, maxRows int) (*domain.SQLResult, error)
}

// Manager opens and caches one bounded pool per connection.
type Manager struct {
	mu    sync.Mutex
	pools map[string]*pgStore
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{pools: make(map[string]*pgStore)}
}

// Store returns the pooled adapter for a connection, opening it on first use.
func (m *Manager) Store(conn *domain.Connection) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.pools[conn.ID]; ok {
		return s, nil
	}

	db, err := sqlx.Open("pgx", conn.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection %s: %w", conn.ID, err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)

	s := &pgStore{db: db, schema: conn.SchemaName}
	m.pools[conn.ID] = s
	return s, nil
}

// Close closes all pooled connections.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.pools {
		s.db.Close()
		delete(m.pools, id)
	}
}

// pgStore implements Store for PostgreSQL.
type pgStore struct {
	db     *sqlx.DB
	schema string
}

// NewStore wraps an existing database handle, used by tests and the sync
// worker when the pool is managed elsewhere.
func NewStore(db *sqlx.DB, schema string) Store {
	return &pgStore{db: db, schema: schema}
}

func (s *pgStore) schemaOrDefault(schema string) string {
	if schema != "" {
		return schema
	}
	if s.schema != "" {
		return s.schema
	}
	return "public"
}

// ListTables returns the base tables in the schema.
func (s *pgStore) ListTables(ctx context.Context, schema string) ([]string, error) {
	var tables []string
	err := s.db.SelectContext(ctx, &tables, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`,
		s.schemaOrDefault(schema),
	)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

type columnRow struct {
	ColumnName string `db:"column_name"`
	DataType   string `db:"data_type"`
	IsNullable string `db:"is_nullable"`
}

// TableColumns introspects column definitions, including primary key flags.
func (s *pgStore) TableColumns(ctx context.Context, schema, table string) ([]domain.ColumnDef, error) {
	schema = s.schemaOrDefault(schema)

	var rows []columnRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`,
		schema, table,
	)
	if err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("table %s.%s not found", schema, table)
	}

	var pkCols []string
	err = s.db.SelectContext(ctx, &pkCols, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1 AND tc.table_name = $2`,
		schema, table,
	)
	if err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}
	pkSet := make(map[string]bool, len(pkCols))
	for _, c := range pkCols {
		pkSet[c] = true
	}

	cols := make([]domain.ColumnDef, 0, len(rows))
	for _, r := range rows {
		cols = append(cols, domain.ColumnDef{
			Name:     r.ColumnName,
			DataType: r.DataType,
			Nullable: r.IsNullable == "YES",
			IsPK:     pkSet[r.ColumnName],
		})
	}
	return cols, nil
}

// SampleRows fetches up to limit rows from the table. Identifiers are quoted
// because they come from introspection, not user input.
func (s *pgStore) SampleRows(ctx context.Context, schema, table string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 3
	}
	query := fmt.Sprintf(`SELECT * FROM %s.%s LIMIT %d`,
		quoteIdent(s.schemaOrDefault(schema)), quoteIdent(table), limit)

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample rows: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		normalizeRow(row)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ExecuteSelect runs a validated SELECT with a bounded row count. Scanning
// stops at maxRows+1 so the truncated flag can be set without draining a
// large result set.
func (s *pgStore) ExecuteSelect(ctx context.Context, query string, maxRows int) (*domain.SQLResult, error) {
	if maxRows <= 0 {
		maxRows = 500
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExecutionFailed, "query execution failed", err)
	}
	defer rows.Close()

	result := &domain.SQLResult{SQL: query}
	for rows.Next() {
		if result.RowCount >= maxRows {
			result.Truncated = true
			break
		}
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExecutionFailed, "row scan failed", err)
		}
		normalizeRow(row)
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExecutionFailed, "query execution failed", err)
	}
	return result, nil
}

// normalizeRow converts driver byte slices to strings so results marshal as
// text instead of base64.
func normalizeRow(row map[string]any) {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
