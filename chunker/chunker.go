package chunker

import (
	"fmt"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/pkoukk/tiktoken-go"
)

// Chunk is a token-bounded slice of a source's text, the unit of
// embedding and storage. Index is 0-based and gap-free within one
// Chunk call; the source id is attached by the ingestion pipeline.
type Chunk struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// Tokenizer is the encode/decode surface the chunker needs. The
// production implementation wraps tiktoken; tests substitute a fake so
// they do not depend on the cl100k BPE data.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// sentenceSplitter is satisfied by sentences.DefaultSentenceTokenizer.
type sentenceSplitter interface {
	Tokenize(text string) []*sentences.Sentence
}

type Chunker struct {
	tokenizer         Tokenizer
	sentenceTokenizer sentenceSplitter
	maxTokens         int
	overlapTokens     int
}

// New creates a chunker backed by the cl100k_base encoding, the
// tokenization used by the OpenAI embedding models this store targets.
func New(maxTokens, overlapTokens int) (*Chunker, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return NewWithTokenizer(tiktokenAdapter{enc: enc}, maxTokens, overlapTokens)
}

// NewWithTokenizer creates a chunker with an explicit tokenizer.
func NewWithTokenizer(tok Tokenizer, maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", maxTokens)
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, fmt.Errorf("overlap tokens must be in [0, max), got %d", overlapTokens)
	}
	return &Chunker{
		tokenizer:         tok,
		sentenceTokenizer: sentences.NewSentenceTokenizer(sentences.NewStorage()),
		maxTokens:         maxTokens,
		overlapTokens:     overlapTokens,
	}, nil
}

// Chunk splits text into sentence-aligned chunks of at most maxTokens
// tokens. Consecutive chunks share an overlap seed: the trailing
// overlapTokens tokens of the closed chunk, decoded back to text,
// start the next one. A single sentence that alone exceeds maxTokens
// is emitted verbatim as its own oversized chunk rather than dropped.
// The function is pure; empty input yields no chunks.
func (c *Chunker) Chunk(text string) []Chunk {
	sents := c.splitSentences(text)
	if len(sents) == 0 {
		return nil
	}

	var chunks []Chunk
	emit := func(text string, tokens int) {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: text, TokenCount: tokens})
	}

	var cur string
	var curTokens int
	// hasSentence distinguishes a chunk holding real content from one
	// holding only the overlap seed; seed-only chunks are never emitted.
	hasSentence := false

	seedFrom := func(prev string) {
		cur, curTokens, hasSentence = "", 0, false
		if c.overlapTokens <= 0 {
			return
		}
		toks := c.tokenizer.Encode(prev)
		if len(toks) > c.overlapTokens {
			toks = toks[len(toks)-c.overlapTokens:]
		}
		seed := strings.TrimSpace(c.tokenizer.Decode(toks))
		if seed == "" {
			return
		}
		cur = seed
		curTokens = len(c.tokenizer.Encode(seed))
	}

	for _, sent := range sents {
		candidate := sent
		if cur != "" {
			candidate = cur + " " + sent
		}
		candTokens := len(c.tokenizer.Encode(candidate))

		if candTokens <= c.maxTokens {
			cur, curTokens = candidate, candTokens
			hasSentence = true
			continue
		}

		sentTokens := len(c.tokenizer.Encode(sent))
		if sentTokens > c.maxTokens {
			if hasSentence {
				emit(cur, curTokens)
			}
			emit(sent, sentTokens)
			seedFrom(sent)
			continue
		}

		if !hasSentence {
			// Only the overlap seed so far and it does not leave room
			// for the sentence; the sentence starts the chunk alone.
			cur, curTokens, hasSentence = sent, sentTokens, true
			continue
		}

		closed := cur
		emit(cur, curTokens)
		seedFrom(closed)

		if cur != "" {
			candidate = cur + " " + sent
			candTokens = len(c.tokenizer.Encode(candidate))
			if candTokens <= c.maxTokens {
				cur, curTokens, hasSentence = candidate, candTokens, true
				continue
			}
		}
		cur, curTokens, hasSentence = sent, sentTokens, true
	}

	if hasSentence {
		emit(cur, curTokens)
	}

	return chunks
}

func (c *Chunker) splitSentences(text string) []string {
	var out []string
	for _, s := range c.sentenceTokenizer.Tokenize(text) {
		trimmed := strings.TrimSpace(s.Text)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if out == nil {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			out = []string{trimmed}
		}
	}
	return out
}

type tiktokenAdapter struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenAdapter) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t tiktokenAdapter) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
