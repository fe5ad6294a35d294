package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/datalens/internal/domain"
)

// MockCatalogRepo is a mock implementation of CatalogRepository
type MockCatalogRepo struct {
	mock.Mock
}

func (m *MockCatalogRepo) Upsert(ctx context.Context, meta *domain.TableMetadata) error {
	args := m.Called(ctx, meta)
	return args.Error(0)
}

func (m *MockCatalogRepo) Get(ctx context.Context, tenantID, connectionID, schema, table string) (*domain.TableMetadata, error) {
	args := m.Called(ctx, tenantID, connectionID, schema, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TableMetadata), args.Error(1)
}

func (m *MockCatalogRepo) SearchSimilar(ctx context.Context, tenantID, connectionID string, embedding []float32, k int, minScore float32) ([]*domain.TableMetadata, error) {
	args := m.Called(ctx, tenantID, connectionID, embedding, k, minScore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TableMetadata), args.Error(1)
}

func (m *MockCatalogRepo) SearchKeyword(ctx context.Context, tenantID, connectionID, query string, k int) ([]*domain.TableMetadata, error) {
	args := m.Called(ctx, tenantID, connectionID, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TableMetadata), args.Error(1)
}

func testConnection() *domain.Connection {
	return &domain.Connection{
		ID:         "c1",
		TenantID:   "t1",
		Name:       "warehouse",
		DSN:        "postgres://localhost/warehouse",
		SchemaName: "public",
		IsActive:   true,
	}
}

func newTestCatalog(repo *MockCatalogRepo, connRepo *MockConnectionRepo, stores *MockStoreProvider, embedder *MockEmbedder, gen *MockGenerator) *CatalogService {
	cfg := CatalogConfig{MaxTables: 5, MinScore: 0.30, SampleRows: 3, TTL: 24 * time.Hour}
	return NewCatalogService(repo, connRepo, stores, embedder, gen, cfg)
}

const describeResponse = `DESCRIPTION: Customer orders with totals and status.
EXAMPLE_QUESTIONS:
- How many orders were placed last month?
- What is the average order value?`

func TestCatalogService_Sync_AllTables(t *testing.T) {
	repo := new(MockCatalogRepo)
	connRepo := new(MockConnectionRepo)
	stores := new(MockStoreProvider)
	embedder := new(MockEmbedder)
	gen := new(MockGenerator)
	store := new(MockWarehouseStore)

	conn := testConnection()
	connRepo.On("Get", mock.Anything, "t1", "c1").Return(conn, nil)
	stores.On("Store", conn).Return(store, nil)
	store.On("ListTables", mock.Anything, "public").Return([]string{"orders", "customers"}, nil)
	repo.On("Get", mock.Anything, "t1", "c1", "public", mock.Anything).
		Return(nil, domain.ErrTableNotCataloged)
	store.On("TableColumns", mock.Anything, "public", mock.Anything).
		Return([]domain.ColumnDef{{Name: "id", DataType: "bigint", IsPK: true}}, nil)
	store.On("SampleRows", mock.Anything, "public", mock.Anything, 3).
		Return([]map[string]any{{"id": int64(1)}}, nil)
	gen.On("GenerateWithSystem", mock.Anything, describeTableSystem, mock.Anything).
		Return(describeResponse, nil)
	embedder.On("Embed", mock.Anything, mock.Anything).
		Return([]float32{0.1, 0.2, 0.3}, nil)
	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(m *domain.TableMetadata) bool {
		return m.TenantID == "t1" && m.Description != "" && len(m.Embedding) == 3
	})).Return(nil)

	svc := newTestCatalog(repo, connRepo, stores, embedder, gen)
	report, err := svc.Sync(context.Background(), "t1", "c1", nil, false)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"orders", "customers"}, report.Synced)
	assert.Empty(t, report.Failed)
	repo.AssertNumberOfCalls(t, "Upsert", 2)
}

func TestCatalogService_Sync_PartialFailure(t *testing.T) {
	repo := new(MockCatalogRepo)
	connRepo := new(MockConnectionRepo)
	stores := new(MockStoreProvider)
	embedder := new(MockEmbedder)
	gen := new(MockGenerator)
	store := new(MockWarehouseStore)

	conn := testConnection()
	connRepo.On("Get", mock.Anything, "t1", "c1").Return(conn, nil)
	stores.On("Store", conn).Return(store, nil)
	repo.On("Get", mock.Anything, "t1", "c1", "public", mock.Anything).
		Return(nil, domain.ErrTableNotCataloged)
	store.On("TableColumns", mock.Anything, "public", "orders").
		Return([]domain.ColumnDef{{Name: "id", DataType: "bigint"}}, nil)
	store.On("TableColumns", mock.Anything, "public", "broken").
		Return(nil, errors.New("permission denied"))
	store.On("SampleRows", mock.Anything, "public", "orders", 3).
		Return(nil, errors.New("timeout"))
	gen.On("GenerateWithSystem", mock.Anything, describeTableSystem, mock.Anything).
		Return(describeResponse, nil)
	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	svc := newTestCatalog(repo, connRepo, stores, embedder, gen)
	report, err := svc.Sync(context.Background(), "t1", "c1", []string{"orders", "broken"}, false)

	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, report.Synced)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "broken", report.Failed[0].TableName)
	assert.Contains(t, report.Failed[0].Reason, "permission denied")
}

func TestCatalogService_Sync_SkipsFreshEntries(t *testing.T) {
	repo := new(MockCatalogRepo)
	connRepo := new(MockConnectionRepo)
	stores := new(MockStoreProvider)
	store := new(MockWarehouseStore)

	conn := testConnection()
	connRepo.On("Get", mock.Anything, "t1", "c1").Return(conn, nil)
	stores.On("Store", conn).Return(store, nil)
	repo.On("Get", mock.Anything, "t1", "c1", "public", "orders").
		Return(&domain.TableMetadata{TableName: "orders", LastSyncedAt: time.Now().UTC()}, nil)

	svc := newTestCatalog(repo, connRepo, stores, new(MockEmbedder), new(MockGenerator))
	report, err := svc.Sync(context.Background(), "t1", "c1", []string{"orders"}, false)

	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, report.Synced)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "TableColumns", mock.Anything, mock.Anything, mock.Anything)
}

func TestCatalogService_Sync_ForceResyncsFreshEntries(t *testing.T) {
	repo := new(MockCatalogRepo)
	connRepo := new(MockConnectionRepo)
	stores := new(MockStoreProvider)
	embedder := new(MockEmbedder)
	gen := new(MockGenerator)
	store := new(MockWarehouseStore)

	conn := testConnection()
	connRepo.On("Get", mock.Anything, "t1", "c1").Return(conn, nil)
	stores.On("Store", conn).Return(store, nil)
	store.On("TableColumns", mock.Anything, "public", "orders").
		Return([]domain.ColumnDef{{Name: "id", DataType: "bigint"}}, nil)
	store.On("SampleRows", mock.Anything, "public", "orders", 3).Return(nil, nil)
	gen.On("GenerateWithSystem", mock.Anything, describeTableSystem, mock.Anything).
		Return(describeResponse, nil)
	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	svc := newTestCatalog(repo, connRepo, stores, embedder, gen)
	report, err := svc.Sync(context.Background(), "t1", "c1", []string{"orders"}, true)

	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, report.Synced)
	// Force skips the freshness lookup entirely.
	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestCatalogService_Discover(t *testing.T) {
	repo := new(MockCatalogRepo)
	embedder := new(MockEmbedder)

	stale := time.Now().UTC().Add(-48 * time.Hour)
	embedder.On("Embed", mock.Anything, "which orders shipped late?").
		Return([]float32{0.5, 0.5}, nil)
	repo.On("SearchSimilar", mock.Anything, "t1", "c1", []float32{0.5, 0.5}, 5, float32(0.30)).
		Return([]*domain.TableMetadata{
			{TableName: "orders", Similarity: 0.82, LastSyncedAt: time.Now().UTC()},
			{TableName: "shipments", Similarity: 0.41, LastSyncedAt: stale},
		}, nil)

	svc := newTestCatalog(repo, new(MockConnectionRepo), new(MockStoreProvider), embedder, new(MockGenerator))
	results, err := svc.Discover(context.Background(), "t1", "c1", "which orders shipped late?")

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Stale)
	assert.True(t, results[1].Stale)
}

func TestCatalogService_Discover_EmptyQuestion(t *testing.T) {
	svc := newTestCatalog(new(MockCatalogRepo), new(MockConnectionRepo), new(MockStoreProvider), new(MockEmbedder), new(MockGenerator))

	_, err := svc.Discover(context.Background(), "t1", "c1", "  ")

	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
}

func TestCatalogService_Discover_EmbeddingFailure(t *testing.T) {
	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).
		Return(nil, errors.New("rate limited"))

	svc := newTestCatalog(new(MockCatalogRepo), new(MockConnectionRepo), new(MockStoreProvider), embedder, new(MockGenerator))
	_, err := svc.Discover(context.Background(), "t1", "c1", "question")

	var domainErr *domain.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeEmbeddingFailed, domainErr.Code)
}

func TestCatalogService_DiscoverWithFallback_KeywordPath(t *testing.T) {
	repo := new(MockCatalogRepo)
	embedder := new(MockEmbedder)

	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	repo.On("SearchSimilar", mock.Anything, "t1", "c1", mock.Anything, 5, float32(0.30)).
		Return([]*domain.TableMetadata{}, nil)
	// Terms come longest first: "invoices" before "show".
	repo.On("SearchKeyword", mock.Anything, "t1", "c1", "invoices", 5).
		Return([]*domain.TableMetadata{{TableName: "invoices", Similarity: 0}}, nil).Once()

	svc := newTestCatalog(repo, new(MockConnectionRepo), new(MockStoreProvider), embedder, new(MockGenerator))
	results, err := svc.DiscoverWithFallback(context.Background(), "t1", "c1", "show invoices")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "invoices", results[0].TableName)
	assert.Zero(t, results[0].Similarity)
	repo.AssertExpectations(t)
}

func TestCatalogService_DiscoverWithFallback_VectorHitSkipsKeyword(t *testing.T) {
	repo := new(MockCatalogRepo)
	embedder := new(MockEmbedder)

	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	repo.On("SearchSimilar", mock.Anything, "t1", "c1", mock.Anything, 5, float32(0.30)).
		Return([]*domain.TableMetadata{{TableName: "orders", Similarity: 0.7, LastSyncedAt: time.Now().UTC()}}, nil)

	svc := newTestCatalog(repo, new(MockConnectionRepo), new(MockStoreProvider), embedder, new(MockGenerator))
	results, err := svc.DiscoverWithFallback(context.Background(), "t1", "c1", "recent orders")

	require.NoError(t, err)
	require.Len(t, results, 1)
	repo.AssertNotCalled(t, "SearchKeyword", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestParseTableDescription(t *testing.T) {
	desc, questions := parseTableDescription(describeResponse)

	assert.Equal(t, "Customer orders with totals and status.", desc)
	assert.Equal(t, []string{
		"How many orders were placed last month?",
		"What is the average order value?",
	}, questions)
}

func TestParseTableDescription_IgnoresNoise(t *testing.T) {
	raw := "Sure, here you go:\nDESCRIPTION: Inventory levels per warehouse.\nEXAMPLE_QUESTIONS:\n- What is in stock?\n\nHope this helps!"

	desc, questions := parseTableDescription(raw)

	assert.Equal(t, "Inventory levels per warehouse.", desc)
	assert.Equal(t, []string{"What is in stock?"}, questions)
}

func TestParseTableDescription_MissingDescription(t *testing.T) {
	desc, questions := parseTableDescription("I cannot describe this table.")

	assert.Empty(t, desc)
	assert.Empty(t, questions)
}

func TestKeywordTerms(t *testing.T) {
	terms := keywordTerms("Show me the latest invoices, please?")

	// Short filler words are dropped, the rest are ordered longest first.
	assert.Equal(t, []string{"invoices", "latest", "please", "show"}, terms)
}
