package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"drive-qdrant-uploader/internal/config"

	"github.com/avast/retry-go/v4"
	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const (
	defaultBatchSize = 100
	maxAttempts      = 3
)

// embedBackend performs one embedding API call for a batch of texts,
// returning exactly one vector per input.
type embedBackend interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingClient batches chunk texts through an embedding provider.
// Failures never shorten the output: a chunk whose embedding cannot be
// obtained gets a zero vector of the model's dimension, so vectors stay
// positionally aligned with the chunks they came from.
type EmbeddingClient struct {
	backend   embedBackend
	dimension int
	batchSize int
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	log       *slog.Logger
}

// NewEmbeddingClient builds the client for the collection's configured
// provider: "openai" (default) or "google".
func NewEmbeddingClient(ctx context.Context, cfg *config.CollectionConfig, log *slog.Logger) (*EmbeddingClient, error) {
	var backend embedBackend
	var rpm int

	switch cfg.EmbeddingProvider {
	case "openai", "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("missing OpenAI API key for embeddings")
		}
		backend = newOpenAIBackend(cfg.OpenAIAPIKey, "", cfg.EmbeddingModel)
		rpm = 3000
	case "google":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("missing Gemini API key for embeddings")
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		backend = &googleBackend{client: client, model: cfg.EmbeddingModel}
		rpm = 1500
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingProvider)
	}

	dimension := cfg.EmbeddingDimensions
	if dimension == 0 {
		dimension = dimensionForModel(cfg.EmbeddingModel)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "EmbeddingAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		// The threshold sits above one batch's worth of retries so a single
		// failed batch still gets its per-item fallback before the breaker
		// opens.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), rpm/10)

	return &EmbeddingClient{
		backend:   backend,
		dimension: dimension,
		batchSize: defaultBatchSize,
		limiter:   limiter,
		breaker:   breaker,
		log:       log,
	}, nil
}

// Dimension is the vector length every returned embedding has.
func (c *EmbeddingClient) Dimension() int {
	return c.dimension
}

// EmbedAll embeds every text, batch by batch. len(result) == len(texts)
// holds for every outcome including partial API failures.
func (c *EmbeddingClient) EmbedAll(ctx context.Context, texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	batches := (len(texts) + c.batchSize - 1) / c.batchSize

	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		c.embedBatch(ctx, texts, vectors, start, end)
		c.log.Info("embedded batch", "batch", start/c.batchSize+1, "batches", batches, "size", end-start)
	}
	return vectors
}

// embedBatch fills vectors[start:end]. Empty texts short-circuit to zero
// vectors without an API call. A failed batch falls back to per-item calls
// so one bad input cannot zero out its neighbors.
func (c *EmbeddingClient) embedBatch(ctx context.Context, texts []string, vectors [][]float32, start, end int) {
	var valid []string
	var positions []int
	for i := start; i < end; i++ {
		cleaned := cleanText(texts[i])
		if cleaned == "" {
			vectors[i] = c.zeroVector()
			continue
		}
		valid = append(valid, cleaned)
		positions = append(positions, i)
	}
	if len(valid) == 0 {
		return
	}

	result, err := c.callWithRetry(ctx, valid)
	if err == nil && len(result) == len(valid) {
		for j, pos := range positions {
			vectors[pos] = c.checked(result[j], pos)
		}
		return
	}
	if err == nil {
		err = fmt.Errorf("provider returned %d vectors for %d inputs", len(result), len(valid))
	}
	c.log.Warn("batch embedding failed, retrying items individually", "error", err, "items", len(valid))

	for j, pos := range positions {
		single, err := c.callWithRetry(ctx, valid[j:j+1])
		if err != nil || len(single) != 1 {
			c.log.Error("embedding failed for chunk, substituting zero vector", "chunk", pos, "error", err)
			vectors[pos] = c.zeroVector()
			continue
		}
		vectors[pos] = c.checked(single[0], pos)
	}
}

func (c *EmbeddingClient) callWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			res, err := c.breaker.Execute(func() (interface{}, error) {
				return c.backend.EmbedBatch(ctx, texts)
			})
			if err != nil {
				return err
			}
			result = res.([][]float32)
			return nil
		},
		retry.Attempts(maxAttempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("embedding attempt failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checked enforces the dimension invariant on a provider vector.
func (c *EmbeddingClient) checked(vec []float32, chunk int) []float32 {
	if len(vec) != c.dimension {
		c.log.Error("unexpected embedding dimension, substituting zero vector",
			"chunk", chunk, "got", len(vec), "want", c.dimension)
		return c.zeroVector()
	}
	return vec
}

func (c *EmbeddingClient) zeroVector() []float32 {
	return make([]float32, c.dimension)
}

func cleanText(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}

// dimensionForModel maps known model names to their vector size.
func dimensionForModel(model string) int {
	switch {
	case strings.Contains(model, "3-large"):
		return 3072
	case strings.Contains(model, "3-small"), strings.Contains(model, "ada"):
		return 1536
	case strings.Contains(model, "text-embedding-004"), strings.Contains(model, "embedding-001"):
		return 768
	default:
		return 1536
	}
}

// openaiBackend calls the OpenAI embeddings endpoint. baseURL overrides the
// API host, which tests use to point at a local stub.
type openaiBackend struct {
	client *openai.Client
	model  string
}

func newOpenAIBackend(apiKey, baseURL, model string) *openaiBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openaiBackend{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (b *openaiBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(b.model),
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// googleBackend embeds through the Gemini batch endpoint.
type googleBackend struct {
	client *genai.Client
	model  string
}

func (b *googleBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := b.client.EmbeddingModel(b.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}
