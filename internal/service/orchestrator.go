package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/datalens/internal/domain"
	"github.com/cloo-solutions/datalens/internal/telemetry"
)

// SQLAnswerer is the SQL branch as the orchestrator sees it.
type SQLAnswerer interface {
	Answer(ctx context.Context, tenantID, connectionID, question string) (*domain.SQLResult, error)
}

// VectorRetriever is the vector branch as the orchestrator sees it.
type VectorRetriever interface {
	Retrieve(ctx context.Context, tenantID, question, documentID string) (*domain.VectorResult, error)
	RetrieveBroadened(ctx context.Context, tenantID, question, documentID string) (*domain.VectorResult, error)
}

// OrchestratorConfig bounds routing behavior.
type OrchestratorConfig struct {
	// BranchTimeout caps each retrieval branch independently. One slow
	// branch cannot consume the other's budget.
	BranchTimeout time.Duration
}

// DefaultOrchestratorConfig provides sane defaults for routing.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{BranchTimeout: 20 * time.Second}
}

// AskRequest is one question with its routing context.
type AskRequest struct {
	TenantID     string
	ConnectionID string
	Question     string
	Mode         domain.QueryMode
	DocumentID   string
}

// Orchestrator routes questions across the SQL and vector branches:
// classifies intent, dispatches the branches concurrently, widens to the
// other branch when the chosen one yields no evidence, and synthesizes one
// answer from whatever arrived. A failed branch degrades the answer rather
// than failing the request; only when every dispatched branch fails does the
// answer itself report failure, and only a synthesis-time provider outage
// surfaces as an error.
type Orchestrator struct {
	sqlAgent    SQLAnswerer
	vectorAgent VectorRetriever
	generator   Generator
	cfg         OrchestratorConfig
}

// NewOrchestrator creates a new Orchestrator instance.
func NewOrchestrator(sqlAgent SQLAnswerer, vectorAgent VectorRetriever, generator Generator, cfg OrchestratorConfig) *Orchestrator {
	if cfg.BranchTimeout <= 0 {
		cfg = DefaultOrchestratorConfig()
	}
	return &Orchestrator{
		sqlAgent:    sqlAgent,
		vectorAgent: vectorAgent,
		generator:   generator,
		cfg:         cfg,
	}
}

const noEvidenceAnswer = "I could not find any data or documents relevant to this question."

// Ask answers one question end to end.
func (o *Orchestrator) Ask(ctx context.Context, req AskRequest) (*domain.Answer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if req.Mode == domain.QueryModeSQL && req.ConnectionID == "" {
		return nil, domain.ErrMissingConnection
	}

	ctx, span := telemetry.StartSpan(ctx, "Orchestrator.Ask", telemetry.SpanAttributes{
		TenantID:     req.TenantID,
		ConnectionID: req.ConnectionID,
		Operation:    "ask",
	})
	defer span.End()

	started := time.Now()
	intent := o.classify(ctx, req)

	answer := &domain.Answer{Question: req.Question, Intent: intent}

	sqlStep, vecStep := o.dispatch(ctx, req, intent, answer)
	answer.Routing = append(answer.Routing, sqlStep, vecStep)

	vectorWanted := o.widen(ctx, req, intent, answer)
	o.broaden(ctx, req, vectorWanted, answer)

	if answer.SQLResult == nil && answer.VectorResult == nil && allBranchesFailed(answer.Routing) {
		answer.Text = failureAnswer(answer.Routing)
		answer.Success = false
		answer.Elapsed = time.Since(started)
		return answer, nil
	}

	text, err := o.synthesize(ctx, req.Question, answer)
	if err != nil {
		err = domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "answer synthesis failed", err)
		span.SetError(err)
		return nil, err
	}
	answer.Text = text
	answer.Success = true
	answer.Elapsed = time.Since(started)
	return answer, nil
}

const classifySystem = `Classify how to answer a user's question about their data. Respond with one word:
sql - the question asks for counts, sums, trends, or specific records from database tables
vector - the question asks about concepts, policies, or content found in documents
hybrid - the question needs both
No other text.`

// classify picks the intent. Explicit modes bypass classification entirely.
// In auto mode a model call decides; when the call fails or returns noise a
// keyword heuristic decides instead, so classification never fails a request.
// Without a connection the SQL branch has nothing to query, so auto mode
// collapses to vector.
func (o *Orchestrator) classify(ctx context.Context, req AskRequest) domain.QueryIntent {
	switch req.Mode {
	case domain.QueryModeSQL:
		return domain.IntentSQL
	case domain.QueryModeVector:
		return domain.IntentVector
	}

	if req.ConnectionID == "" {
		return domain.IntentVector
	}

	raw, err := o.generator.GenerateWithSystem(ctx, classifySystem, req.Question)
	if err == nil {
		switch domain.QueryIntent(strings.ToLower(strings.TrimSpace(raw))) {
		case domain.IntentSQL:
			return domain.IntentSQL
		case domain.IntentVector:
			return domain.IntentVector
		case domain.IntentHybrid:
			return domain.IntentHybrid
		}
	} else {
		log.Printf("orchestrator: intent classification failed, using heuristic: %v", err)
	}
	return heuristicIntent(req.Question)
}

var sqlHintWords = []string{
	"how many", "count", "total", "sum", "average", "revenue", "top ",
	"most ", "least ", "per month", "per year", "trend", "list all",
}

// heuristicIntent is the classification fallback: aggregate-flavored wording
// suggests SQL, anything else gets both branches.
func heuristicIntent(question string) domain.QueryIntent {
	q := strings.ToLower(question)
	for _, w := range sqlHintWords {
		if strings.Contains(q, w) {
			return domain.IntentSQL
		}
	}
	return domain.IntentHybrid
}

// dispatch runs the branches the intent selects, concurrently for hybrid.
// Each branch gets its own deadline derived from the request context.
func (o *Orchestrator) dispatch(ctx context.Context, req AskRequest, intent domain.QueryIntent, answer *domain.Answer) (domain.RoutingStep, domain.RoutingStep) {
	sqlStep := domain.RoutingStep{Agent: "sql", Status: domain.BranchSkipped}
	vecStep := domain.RoutingStep{Agent: "vector", Status: domain.BranchSkipped}

	var wg sync.WaitGroup
	var sqlResult *domain.SQLResult
	var vecResult *domain.VectorResult
	if intent.NeedsSQL() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sqlStep, sqlResult = o.runSQL(ctx, req)
		}()
	}
	if intent.NeedsVector() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vecStep, vecResult = o.runVector(ctx, req)
		}()
	}
	wg.Wait()

	answer.SQLResult = sqlResult
	answer.VectorResult = vecResult
	return sqlStep, vecStep
}

func (o *Orchestrator) runSQL(ctx context.Context, req AskRequest) (domain.RoutingStep, *domain.SQLResult) {
	step := domain.RoutingStep{Agent: "sql"}
	branchCtx, cancel := context.WithTimeout(ctx, o.cfg.BranchTimeout)
	defer cancel()

	started := time.Now()
	result, err := o.sqlAgent.Answer(branchCtx, req.TenantID, req.ConnectionID, req.Question)
	step.Duration = time.Since(started).Milliseconds()

	switch {
	case err == nil:
		step.Status = domain.BranchOK
		step.Evidence = fmt.Sprintf("%d rows from %s", result.RowCount, strings.Join(result.TablesUsed, ", "))
		return step, result
	case errors.Is(err, domain.ErrNoRelevantTables):
		step.Status = domain.BranchEmpty
	default:
		step.Status = domain.BranchFailed
		step.ErrorCode = errorCode(err)
		step.Error = err.Error()
		log.Printf("orchestrator: sql branch failed: %v", err)
	}
	return step, nil
}

func (o *Orchestrator) runVector(ctx context.Context, req AskRequest) (domain.RoutingStep, *domain.VectorResult) {
	step := domain.RoutingStep{Agent: "vector"}
	branchCtx, cancel := context.WithTimeout(ctx, o.cfg.BranchTimeout)
	defer cancel()

	started := time.Now()
	result, err := o.vectorAgent.Retrieve(branchCtx, req.TenantID, req.Question, req.DocumentID)
	step.Duration = time.Since(started).Milliseconds()

	switch {
	case err != nil:
		step.Status = domain.BranchFailed
		step.ErrorCode = errorCode(err)
		step.Error = err.Error()
		log.Printf("orchestrator: vector branch failed: %v", err)
	case len(result.Chunks) == 0:
		step.Status = domain.BranchEmpty
	default:
		step.Status = domain.BranchOK
		step.Evidence = fmt.Sprintf("%d chunks, best score %.2f", len(result.Chunks), result.Chunks[0].Similarity)
		return step, result
	}
	return step, nil
}

// widen dispatches the branch classification skipped when the chosen branch
// came back with no evidence. Classification is advisory; an explicit mode
// pins the branch and is never widened. Returns whether the vector branch
// has been tried, so broadening can follow a widened vector pass too.
func (o *Orchestrator) widen(ctx context.Context, req AskRequest, intent domain.QueryIntent, answer *domain.Answer) bool {
	vectorTried := intent.NeedsVector()
	if req.Mode == domain.QueryModeSQL || req.Mode == domain.QueryModeVector {
		return vectorTried
	}
	if answer.SQLResult != nil || answer.VectorResult != nil {
		return vectorTried
	}

	switch {
	case !intent.NeedsVector():
		step, result := o.runVector(ctx, req)
		step.Agent = "vector_widened"
		answer.VectorResult = result
		answer.Routing = append(answer.Routing, step)
		vectorTried = true
	case !intent.NeedsSQL() && req.ConnectionID != "":
		step, result := o.runSQL(ctx, req)
		step.Agent = "sql_widened"
		answer.SQLResult = result
		answer.Routing = append(answer.Routing, step)
	}
	return vectorTried
}

// broaden retries the vector branch with no score floor when a vector pass
// ran and produced nothing. It is the only retry a single branch gets; the
// SQL branch never loosens its own constraints.
func (o *Orchestrator) broaden(ctx context.Context, req AskRequest, vectorTried bool, answer *domain.Answer) {
	if !vectorTried || answer.VectorResult != nil {
		return
	}

	step := domain.RoutingStep{Agent: "vector_broadened"}
	branchCtx, cancel := context.WithTimeout(ctx, o.cfg.BranchTimeout)
	defer cancel()

	started := time.Now()
	result, err := o.vectorAgent.RetrieveBroadened(branchCtx, req.TenantID, req.Question, req.DocumentID)
	step.Duration = time.Since(started).Milliseconds()

	switch {
	case err != nil:
		step.Status = domain.BranchFailed
		step.ErrorCode = errorCode(err)
		step.Error = err.Error()
	case len(result.Chunks) == 0:
		step.Status = domain.BranchEmpty
	default:
		step.Status = domain.BranchOK
		step.Evidence = fmt.Sprintf("%d chunks, best score %.2f", len(result.Chunks), result.Chunks[0].Similarity)
		answer.VectorResult = result
	}
	answer.Routing = append(answer.Routing, step)
}

const synthesizeSystem = `You answer questions using only the evidence provided. ` +
	`Cite numbers exactly as they appear in query results. If the evidence does ` +
	`not answer the question, say so plainly. Do not invent facts.`

// synthesize produces the final answer text from whatever evidence the
// branches returned. With no evidence at all the canned no-evidence answer is
// returned without a model call.
func (o *Orchestrator) synthesize(ctx context.Context, question string, answer *domain.Answer) (string, error) {
	if answer.SQLResult == nil && answer.VectorResult == nil {
		return noEvidenceAnswer, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	if r := answer.SQLResult; r != nil {
		fmt.Fprintf(&b, "Query results (%d rows", r.RowCount)
		if r.Truncated {
			b.WriteString(", truncated")
		}
		fmt.Fprintf(&b, ") from SQL:\n%s\n", r.SQL)
		for _, row := range r.Rows {
			fmt.Fprintf(&b, "%v\n", row)
		}
		b.WriteString("\n")
	}
	if r := answer.VectorResult; r != nil {
		b.WriteString("Document excerpts:\n")
		for _, c := range r.Chunks {
			fmt.Fprintf(&b, "[score %.2f] %s\n\n", c.Similarity, c.Chunk.Content)
		}
	}
	b.WriteString("Answer the question using this evidence.")

	return o.generator.GenerateWithSystem(ctx, synthesizeSystem, b.String())
}

// allBranchesFailed reports whether every branch that actually ran ended in
// failure. An empty branch is a valid no-evidence outcome, not a failure, so
// a mix of empty and failed branches still yields the no-evidence answer.
func allBranchesFailed(steps []domain.RoutingStep) bool {
	failed := 0
	for _, s := range steps {
		switch s.Status {
		case domain.BranchSkipped:
		case domain.BranchFailed:
			failed++
		default:
			return false
		}
	}
	return failed > 0
}

// failureAnswer names the failed branches so the caller can tell a retrieval
// outage from a genuinely empty result.
func failureAnswer(steps []domain.RoutingStep) string {
	var parts []string
	for _, s := range steps {
		if s.Status == domain.BranchFailed {
			parts = append(parts, fmt.Sprintf("%s retrieval failed (%s)", s.Agent, s.ErrorCode))
		}
	}
	return "I could not answer this question: " + strings.Join(parts, "; ") + "."
}

// errorCode extracts the domain error code, defaulting to internal.
func errorCode(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return domain.ErrCodeInternalError
}
