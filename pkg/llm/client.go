package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model generates a completion from chat messages. *openai.LLM
// satisfies it.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client answers questions against a caller-supplied context block. How
// the model uses the context is up to the model.
type Client struct {
	model  Model
	config Config
}

func New(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 5000
	}

	model, err := openai.New(
		openai.WithToken(config.APIKey),
		openai.WithModel(config.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return &Client{model: model, config: config}, nil
}

// NewWithModel builds a client around an existing model.
func NewWithModel(model Model, config Config) *Client {
	if config.MaxTokens == 0 {
		config.MaxTokens = 5000
	}
	return &Client{model: model, config: config}
}

// GenerateAnswer asks the model the question with the retrieved context
// provided as the system message.
func (c *Client) GenerateAnswer(ctx context.Context, contextText, question string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "Context:\n"+contextText),
		llms.TextParts(llms.ChatMessageTypeHuman, question),
	}

	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(c.config.Temperature),
		llms.WithMaxTokens(c.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
