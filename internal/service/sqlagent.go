package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloo-solutions/datalens/internal/domain"
	"github.com/cloo-solutions/datalens/internal/telemetry"
)

// TableDiscoverer surfaces catalog tables relevant to a question.
type TableDiscoverer interface {
	DiscoverWithFallback(ctx context.Context, tenantID, connectionID, question string) ([]*domain.TableMetadata, error)
}

// SQLAgentConfig bounds SQL agent behavior.
type SQLAgentConfig struct {
	MaxRows      int
	QueryTimeout time.Duration
	// RepairAttempts is how many times a failed execution is re-prompted
	// with the database error before giving up.
	RepairAttempts int
}

// DefaultSQLAgentConfig provides sane defaults for the SQL agent.
func DefaultSQLAgentConfig() SQLAgentConfig {
	return SQLAgentConfig{
		MaxRows:        500,
		QueryTimeout:   15 * time.Second,
		RepairAttempts: 1,
	}
}

// SQLAgent answers questions against tenant databases: it discovers relevant
// tables, generates a SELECT from their schemas, validates it, executes it
// under a timeout, and repairs a failed query once using the database error.
type SQLAgent struct {
	discoverer TableDiscoverer
	generator  Generator
	connRepo   CatalogConnectionRepository
	stores     StoreProvider
	validator  *SQLValidator
	cfg        SQLAgentConfig
}

// NewSQLAgent creates a new SQLAgent instance.
func NewSQLAgent(
	discoverer TableDiscoverer,
	generator Generator,
	connRepo CatalogConnectionRepository,
	stores StoreProvider,
	cfg SQLAgentConfig,
) *SQLAgent {
	if cfg.MaxRows <= 0 {
		cfg = DefaultSQLAgentConfig()
	}
	return &SQLAgent{
		discoverer: discoverer,
		generator:  generator,
		connRepo:   connRepo,
		stores:     stores,
		validator:  NewSQLValidator(cfg.MaxRows),
		cfg:        cfg,
	}
}

const generateSQLSystem = `You are a PostgreSQL analyst. Write a single SELECT statement ` +
	`that answers the user's question using only the tables provided. ` +
	`Use only columns that appear in the schemas. Never modify data. ` +
	`Respond with SQL only, no explanation.`

// Answer runs the full pipeline for one question. Finding no relevant tables
// returns domain.ErrNoRelevantTables, which callers treat as an empty branch
// rather than a failure. The returned result records every attempted
// statement, including rejected and repaired ones.
func (a *SQLAgent) Answer(ctx context.Context, tenantID, connectionID, question string) (*domain.SQLResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "SQLAgent.Answer", telemetry.SpanAttributes{
		TenantID:     tenantID,
		ConnectionID: connectionID,
		Agent:        "sql",
	})
	defer span.End()

	tables, err := a.discoverer.DiscoverWithFallback(ctx, tenantID, connectionID, question)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, domain.ErrNoRelevantTables
	}

	conn, err := a.connRepo.Get(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}
	store, err := a.stores.Store(conn)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExecutionFailed, "failed to open connection", err)
	}

	allowed := allowedTables(tables)
	result := &domain.SQLResult{}
	for _, t := range tables {
		result.TablesUsed = append(result.TablesUsed, t.QualifiedName())
	}

	prompt := buildSQLPrompt(question, tables)
	var lastErr error
	for attempt := 0; attempt <= a.cfg.RepairAttempts; attempt++ {
		raw, err := a.generator.GenerateWithSystem(ctx, generateSQLSystem, prompt)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeGenerationFailed, "sql generation failed", err)
		}
		sql := stripCodeFences(raw)
		if sql == "" {
			return nil, domain.ErrGenerationFailed
		}

		validated, err := a.validator.Validate(sql, allowed)
		if err != nil {
			result.Attempts = append(result.Attempts, domain.SQLAttempt{SQL: sql, Error: err.Error()})
			return nil, err
		}

		execCtx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
		execResult, err := store.ExecuteSelect(execCtx, validated, a.cfg.MaxRows)
		cancel()
		if err == nil {
			execResult.TablesUsed = result.TablesUsed
			execResult.Attempts = append(result.Attempts, domain.SQLAttempt{SQL: validated})
			return execResult, nil
		}

		lastErr = err
		result.Attempts = append(result.Attempts, domain.SQLAttempt{SQL: validated, Error: err.Error()})
		if attempt < a.cfg.RepairAttempts {
			log.Printf("sqlagent: execution failed, attempting repair: %v", err)
			prompt = buildRepairPrompt(question, tables, validated, err)
		}
	}

	return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExecutionFailed, "query failed after repair", lastErr)
}

func allowedTables(tables []*domain.TableMetadata) map[string]bool {
	allowed := make(map[string]bool, len(tables)*2)
	for _, t := range tables {
		allowed[strings.ToLower(t.TableName)] = true
		allowed[strings.ToLower(t.SchemaName)+"."+strings.ToLower(t.TableName)] = true
	}
	return allowed
}

// buildSQLPrompt renders the discovered tables into a bounded schema context
// for the generator. Example questions from the catalog hint at how each
// table is usually queried.
func buildSQLPrompt(question string, tables []*domain.TableMetadata) string {
	var b strings.Builder
	b.WriteString("Available tables:\n\n")
	for _, t := range tables {
		fmt.Fprintf(&b, "Table %s", t.QualifiedName())
		if t.Description != "" {
			fmt.Fprintf(&b, ": %s", t.Description)
		}
		b.WriteString("\nColumns:\n")
		for _, col := range t.Columns {
			fmt.Fprintf(&b, "  - %s %s", col.Name, col.DataType)
			if col.IsPK {
				b.WriteString(" (primary key)")
			}
			b.WriteString("\n")
		}
		if len(t.ExampleQs) > 0 {
			b.WriteString("Often used to answer:\n")
			for _, q := range t.ExampleQs {
				fmt.Fprintf(&b, "  - %s\n", q)
			}
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}

func buildRepairPrompt(question string, tables []*domain.TableMetadata, failedSQL string, execErr error) string {
	var b strings.Builder
	b.WriteString(buildSQLPrompt(question, tables))
	fmt.Fprintf(&b, "\nThis query failed:\n%s\n\nDatabase error:\n%s\n\nWrite a corrected query.\n",
		failedSQL, execErr.Error())
	return b.String()
}

// stripCodeFences removes a markdown code fence around a model response.
// Models wrap SQL in fences even when told not to.
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 && len(strings.Fields(s[:i])) <= 1 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
