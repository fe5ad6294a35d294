package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// Control-plane database holding the metadata catalog and chunk store.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	ChatModel      string `envconfig:"CHAT_MODEL" default:"gpt-4o"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDims  int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	// Retrieval tuning.
	MaxContextTables int           `envconfig:"MAX_CONTEXT_TABLES" default:"5"`
	MinTableScore    float32       `envconfig:"MIN_TABLE_SCORE" default:"0.30"`
	MaxVectorResults int           `envconfig:"MAX_VECTOR_RESULTS" default:"5"`
	MinChunkScore    float32       `envconfig:"MIN_CHUNK_SCORE" default:"0.25"`
	MaxResultRows    int           `envconfig:"MAX_RESULT_ROWS" default:"500"`
	SQLTimeout       time.Duration `envconfig:"SQL_TIMEOUT" default:"15s"`
	BranchTimeout    time.Duration `envconfig:"BRANCH_TIMEOUT" default:"20s"`
	CatalogTTL       time.Duration `envconfig:"CATALOG_TTL" default:"24h"`

	// Ingestion tuning.
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"180"`

	// Background catalog refresh.
	SyncWorkerEnabled bool          `envconfig:"SYNC_WORKER_ENABLED" default:"true"`
	SyncPollInterval  time.Duration `envconfig:"SYNC_POLL_INTERVAL" default:"5m"`

	// Optional raw-document archive.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"datalens-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Static API keys mapping to tenants: "key1:tenant1,key2:tenant2".
	// Tenant/credential management is owned by the external control plane;
	// this is the minimal surface the core needs to scope requests.
	APIKeys string `envconfig:"API_KEYS"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DATALENS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
