package domain

import (
	"strings"
	"time"
)

// QueryMode is the caller-requested routing mode.
type QueryMode string

const (
	QueryModeAuto   QueryMode = "auto"
	QueryModeSQL    QueryMode = "sql"
	QueryModeVector QueryMode = "vector"
)

// ParseQueryMode normalizes a mode string; empty means auto.
func ParseQueryMode(s string) (QueryMode, error) {
	switch QueryMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", QueryModeAuto:
		return QueryModeAuto, nil
	case QueryModeSQL:
		return QueryModeSQL, nil
	case QueryModeVector:
		return QueryModeVector, nil
	default:
		return "", ErrInvalidQueryMode
	}
}

// QueryIntent is the closed classification result for an auto-mode question.
// It is produced per request and never persisted.
type QueryIntent string

const (
	IntentSQL    QueryIntent = "sql"
	IntentVector QueryIntent = "vector"
	IntentHybrid QueryIntent = "hybrid"
)

// NeedsSQL reports whether the intent dispatches the SQL branch.
func (i QueryIntent) NeedsSQL() bool { return i == IntentSQL || i == IntentHybrid }

// NeedsVector reports whether the intent dispatches the vector branch.
func (i QueryIntent) NeedsVector() bool { return i == IntentVector || i == IntentHybrid }

// BranchStatus is the terminal state of one dispatched retrieval branch.
type BranchStatus string

const (
	BranchOK      BranchStatus = "ok"
	BranchEmpty   BranchStatus = "empty"
	BranchFailed  BranchStatus = "failed"
	BranchSkipped BranchStatus = "skipped"
)

// RoutingStep is the trace record for one retrieval branch: which agent ran,
// how long it took, how it ended, and the evidence it produced. Returned to
// the caller for observability, never persisted.
type RoutingStep struct {
	Agent     string       `json:"agent"`
	Status    BranchStatus `json:"status"`
	Duration  int64        `json:"duration_ms"`
	Evidence  string       `json:"evidence,omitempty"`
	ErrorCode string       `json:"error_code,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// SQLResult is the outcome of a successful SQL branch. RowCount is capped by
// the configured maximum; Truncated is set when the cap was hit.
type SQLResult struct {
	SQL        string           `json:"sql"`
	TablesUsed []string         `json:"tables_used"`
	Rows       []map[string]any `json:"rows"`
	RowCount   int              `json:"row_count"`
	Truncated  bool             `json:"truncated"`
	Attempts   []SQLAttempt     `json:"attempts,omitempty"`
}

// SQLAttempt records one generation/execution attempt, including the single
// repair attempt after a database error.
type SQLAttempt struct {
	SQL   string `json:"sql"`
	Error string `json:"error,omitempty"`
}

// VectorResult is an ordered list of scored chunks, descending by similarity.
type VectorResult struct {
	Chunks []ScoredChunk `json:"chunks"`
}

// Answer is the synthesized response for one question.
type Answer struct {
	Success      bool           `json:"success"`
	Question     string         `json:"question"`
	Text         string         `json:"answer"`
	SQLResult    *SQLResult     `json:"sql_results,omitempty"`
	VectorResult *VectorResult  `json:"vector_results,omitempty"`
	Routing      []RoutingStep  `json:"routing"`
	Intent       QueryIntent    `json:"intent"`
	Elapsed      time.Duration  `json:"-"`
}
