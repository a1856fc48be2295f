package answer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ragstore/pkg/embedding"
	"ragstore/pkg/vectorindex"
)

// NoRelevantInformation is the fixed answer for a question that matched
// nothing in the index. No model call happens in that case.
const NoRelevantInformation = "No relevant information was found."

type Config struct {
	Namespace string
	// TopK bounds how many matches are retrieved per question.
	TopK int
	// ContextBudget caps the assembled context in characters; 0 or less
	// means unlimited. Matches are dropped whole from the bottom of the
	// ranking, never cut mid-text.
	ContextBudget int
}

func DefaultConfig(namespace string) Config {
	return Config{
		Namespace:     namespace,
		TopK:          5,
		ContextBudget: 12000,
	}
}

type Retriever interface {
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]vectorindex.Match, error)
}

type Generator interface {
	GenerateAnswer(ctx context.Context, contextText, question string) (string, error)
}

// Response carries the generated answer and the matched texts that were
// actually placed in front of the model. A match dropped for budget is
// not cited.
type Response struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"sources,omitempty"`
}

// Assembler answers a question from the index: embed the question,
// retrieve the top matches, assemble them into a context block and
// delegate the final wording to the model.
type Assembler struct {
	embedder embedding.Client
	index    Retriever
	llm      Generator
	config   Config
	logger   *zap.Logger
}

func New(embedder embedding.Client, index Retriever, llm Generator, config Config, logger *zap.Logger) *Assembler {
	if config.TopK <= 0 {
		config.TopK = 5
	}
	return &Assembler{
		embedder: embedder,
		index:    index,
		llm:      llm,
		config:   config,
		logger:   logger,
	}
}

// Answer resolves question against the namespace. Failing to embed the
// question is fatal, unlike ingestion where a failed chunk is skipped:
// without a query vector there is nothing to retrieve with. A retrieval
// backend outage surfaces as vectorindex.ErrUnavailable, distinct from
// a clean zero-match outcome.
func (a *Assembler) Answer(ctx context.Context, question string) (*Response, error) {
	res := a.embedder.Embed(ctx, question)
	if !res.OK() {
		return nil, fmt.Errorf("failed to embed question: %w", res.Err)
	}

	matches, err := a.index.Query(ctx, a.config.Namespace, res.Vector, a.config.TopK)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		a.logger.Info("no matches for question")
		return &Response{Answer: NoRelevantInformation}, nil
	}

	included := a.fitBudget(matches)
	contextText := strings.Join(included, "\n")

	answerText, err := a.llm.GenerateAnswer(ctx, contextText, question)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &Response{Answer: answerText, Citations: included}, nil
}

// fitBudget keeps the highest-ranked matches whose texts fit the
// character budget. The top match is always kept, even alone over
// budget, so the model never answers from an empty context.
func (a *Assembler) fitBudget(matches []vectorindex.Match) []string {
	included := make([]string, 0, len(matches))
	total := 0
	for i, m := range matches {
		cost := len(m.Text)
		if i > 0 {
			cost++ // joining newline
		}
		if i > 0 && a.config.ContextBudget > 0 && total+cost > a.config.ContextBudget {
			a.logger.Debug("dropping matches over context budget",
				zap.Int("kept", len(included)),
				zap.Int("dropped", len(matches)-len(included)))
			break
		}
		included = append(included, m.Text)
		total += cost
	}
	return included
}
