package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultChatModel is the model used for generation calls
	DefaultChatModel = openai.GPT4o
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected embedding dimension
	DefaultEmbeddingDimensions = 1536
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
	// ErrEmptyCompletion is returned when the model produced no choices
	ErrEmptyCompletion = errors.New("no completion returned")
)

// ModelAPI defines the upstream calls the client depends on
type ModelAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	CreateCompletion(ctx context.Context, system, prompt string) (string, error)
}

// Client wraps the OpenAI API as the embedding and generation gateways.
// Embeddings are cached by content hash when a cache is injected.
type Client struct {
	api        ModelAPI
	cache      EmbeddingCache
	dimensions int
}

type APIAdapter struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
}

func NewAPIAdapter(apiKey, chatModel string, embeddingModel openai.EmbeddingModel) *APIAdapter {
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	return &APIAdapter{
		client:         openai.NewClient(apiKey),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
	}
}

// CreateEmbeddings calls the OpenAI API to embed a batch of texts
func (a *APIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.embeddingModel,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// CreateCompletion calls the OpenAI chat API with an optional system prompt
func (a *APIAdapter) CreateCompletion(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.chatModel,
		Messages:    messages,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

type Config struct {
	APIKey              string
	ChatModel           string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	Cache               EmbeddingCache
}

// NewClient creates a new client using defaults and an in-memory cache.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Client{
		api:        NewAPIAdapter(cfg.APIKey, cfg.ChatModel, cfg.EmbeddingModel),
		cache:      cache,
		dimensions: dimensions,
	}
}

// NewClientFromEnv creates a new client using the OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// NewClientWithAPI wires a custom ModelAPI, used by tests to substitute fakes.
func NewClientWithAPI(api ModelAPI, cache EmbeddingCache, dimensions int) *Client {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Client{api: api, cache: cache, dimensions: dimensions}
}

// Embed generates an embedding for a single text, consulting the cache first.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	key := CacheKey(text)
	if emb, ok := c.cache.Get(key); ok {
		return emb, nil
	}

	embs, err := c.api.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(embs) == 0 {
		return nil, errors.New("no embedding data returned")
	}
	if len(embs[0]) != c.dimensions {
		return nil, ErrWrongDimensions
	}

	c.cache.Set(key, embs[0])
	return embs[0], nil
}

// EmbedBatch generates embeddings for texts in one upstream call where
// possible. Cached texts are served locally; only misses hit the API. The
// result preserves input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
		if emb, ok := c.cache.Get(CacheKey(text)); ok {
			out[i] = emb
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		embs, err := c.api.CreateEmbeddings(ctx, missTexts)
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		for j, emb := range embs {
			if len(emb) != c.dimensions {
				return nil, ErrWrongDimensions
			}
			out[missIdx[j]] = emb
			c.cache.Set(CacheKey(missTexts[j]), emb)
		}
	}

	return out, nil
}

// Generate produces text for a prompt with no system context.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.GenerateWithSystem(ctx, "", prompt)
}

// GenerateWithSystem produces text for a prompt under a system instruction.
func (c *Client) GenerateWithSystem(ctx context.Context, system, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyText
	}
	text, err := c.api.CreateCompletion(ctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	return text, nil
}

// Dimensions returns the expected embedding dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}
