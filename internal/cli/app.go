package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/datalens/internal/config"
	"github.com/cloo-solutions/datalens/internal/database"
	"github.com/cloo-solutions/datalens/internal/openai"
	"github.com/cloo-solutions/datalens/internal/repository"
	"github.com/cloo-solutions/datalens/internal/service"
	"github.com/cloo-solutions/datalens/internal/storage"
	"github.com/cloo-solutions/datalens/internal/warehouse"
)

// App wires the repositories, gateways, and services every command needs.
type App struct {
	Cfg        *config.Config
	Pool       *pgxpool.Pool
	Warehouses *warehouse.Manager

	ConnRepo    *repository.ConnectionRepository
	CatalogRepo *repository.CatalogRepository
	ChunkRepo   *repository.DocumentChunkRepository

	OpenAI       *openai.Client
	Archiver     *storage.S3Client
	Catalog      *service.CatalogService
	Ingest       *service.IngestService
	SQLAgent     *service.SQLAgent
	VectorAgent  *service.VectorAgent
	Orchestrator *service.Orchestrator
}

// NewApp builds the application from the environment. Commands that reach
// the model provider require OPENAI_API_KEY.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newAppWithConfig(ctx, cfg)
}

func newAppWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	if !cfg.HasOpenAI() {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	client := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		ChatModel:           cfg.ChatModel,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDims,
	})

	app := &App{
		Cfg:         cfg,
		Pool:        pool,
		Warehouses:  warehouse.NewManager(),
		ConnRepo:    repository.NewConnectionRepository(pool),
		CatalogRepo: repository.NewCatalogRepository(pool),
		ChunkRepo:   repository.NewDocumentChunkRepository(pool),
		OpenAI:      client,
	}

	app.Catalog = service.NewCatalogService(
		app.CatalogRepo, app.ConnRepo, app.Warehouses, client, client,
		service.CatalogConfig{
			MaxTables:  cfg.MaxContextTables,
			MinScore:   cfg.MinTableScore,
			SampleRows: 3,
			TTL:        cfg.CatalogTTL,
		},
	)

	app.Ingest = service.NewIngestService(client, app.ChunkRepo).
		WithChunkConfig(service.ChunkConfig{
			TargetChars: cfg.ChunkSize,
			Tolerance:   cfg.ChunkSize / 5,
			Overlap:     cfg.ChunkOverlap,
			MaxChunks:   200,
		})

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("document archive bucket '%s' ready", cfg.S3Bucket)
		app.Archiver = s3Client
		app.Ingest = app.Ingest.WithArchiver(s3Client)
	}

	app.SQLAgent = service.NewSQLAgent(
		app.Catalog, client, app.ConnRepo, app.Warehouses,
		service.SQLAgentConfig{
			MaxRows:        cfg.MaxResultRows,
			QueryTimeout:   cfg.SQLTimeout,
			RepairAttempts: 1,
		},
	)

	app.VectorAgent = service.NewVectorAgent(client, app.ChunkRepo,
		service.VectorAgentConfig{
			MaxResults: cfg.MaxVectorResults,
			MinScore:   cfg.MinChunkScore,
		},
	)

	app.Orchestrator = service.NewOrchestrator(app.SQLAgent, app.VectorAgent, client,
		service.OrchestratorConfig{BranchTimeout: cfg.BranchTimeout})

	return app, nil
}

// Close releases database pools.
func (a *App) Close() {
	a.Warehouses.Close()
	a.Pool.Close()
}
