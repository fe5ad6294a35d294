package domain

import (
	"strings"
	"time"
)

// Connection identifies one tenant-scoped relational data source. The
// connection manager owns the record; the core reads it read-only.
type Connection struct {
	ID         string
	TenantID   string
	Name       string
	DSN        string
	SchemaName string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ColumnDef describes one column of a cataloged table.
type ColumnDef struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	IsPK     bool   `json:"is_pk,omitempty"`
}

// TableMetadata is one catalog entry: a per-table record that makes the
// table discoverable by meaning. Unique per
// (tenant_id, connection_id, schema_name, table_name).
type TableMetadata struct {
	ID           string
	TenantID     string
	ConnectionID string
	SchemaName   string
	TableName    string
	Columns      []ColumnDef
	Description  string
	ExampleQs    []string
	SampleRows   []map[string]any
	Embedding    []float32
	Similarity   float32
	Stale        bool
	LastSyncedAt time.Time
	CreatedAt    time.Time
}

// QualifiedName returns schema.table, omitting the schema when it is the
// default search path.
func (t *TableMetadata) QualifiedName() string {
	if t.SchemaName == "" || t.SchemaName == "public" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

// EmbeddingText is the text the catalog embeds for an entry. The table name
// is included so short queries that name the table outright still rank it.
func (t *TableMetadata) EmbeddingText() string {
	parts := []string{t.TableName}
	if t.Description != "" {
		parts = append(parts, t.Description)
	}
	return strings.Join(parts, " ")
}

// IsStale reports whether the entry has not been synced within ttl.
func (t *TableMetadata) IsStale(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(t.LastSyncedAt) > ttl
}

// SyncFailure records one table that could not be synced.
type SyncFailure struct {
	TableName string `json:"table_name"`
	Reason    string `json:"reason"`
}

// SyncReport summarizes a catalog sync batch. Per-table failures do not
// abort the batch.
type SyncReport struct {
	Synced []string      `json:"synced"`
	Failed []SyncFailure `json:"failed"`
}

// AddFailure appends a failed table to the report.
func (r *SyncReport) AddFailure(table string, err error) {
	reason := "unknown"
	if err != nil {
		reason = err.Error()
	}
	r.Failed = append(r.Failed, SyncFailure{TableName: table, Reason: reason})
}
