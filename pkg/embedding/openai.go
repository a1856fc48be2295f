package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"ragstore/pkg/retry"
)

type OpenAIConfig struct {
	APIKey    string
	Model     string
	Dimension int
	Retry     retry.Policy
}

// OpenAIClient implements Client on top of langchaingo's OpenAI
// embedding API.
type OpenAIClient struct {
	embedder  embeddings.Embedder
	dimension int
	policy    retry.Policy
	logger    *zap.Logger
}

func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	client, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return NewWithEmbedder(embedder, cfg.Dimension, cfg.Retry, logger), nil
}

// NewWithEmbedder wires an existing langchaingo embedder; tests use it
// with a fake.
func NewWithEmbedder(embedder embeddings.Embedder, dimension int, policy retry.Policy, logger *zap.Logger) *OpenAIClient {
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return &OpenAIClient{
		embedder:  embedder,
		dimension: dimension,
		policy:    policy,
		logger:    logger,
	}
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) Result {
	var vectors [][]float32
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var embedErr error
		vectors, embedErr = c.embedder.EmbedDocuments(ctx, []string{text})
		return embedErr
	})
	if err != nil {
		c.logger.Warn("embedding call failed", zap.Error(err))
		return Failure(fmt.Errorf("embedding call failed: %w", err))
	}

	if len(vectors) == 0 {
		return Failure(ErrEmptyEmbedding)
	}
	vector := vectors[0]
	if err := Validate(vector, c.dimension); err != nil {
		c.logger.Warn("embedding response rejected",
			zap.Int("length", len(vector)),
			zap.Error(err))
		return Failure(err)
	}

	return Result{Vector: vector}
}

func (c *OpenAIClient) Dimension() int {
	return c.dimension
}
