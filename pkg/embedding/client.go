package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Result is the outcome of embedding one text: a vector on success or
// the reason it failed. Failures are soft by contract: callers skip the
// text and keep going, so Embed never panics and transport errors are
// folded into Err rather than raised.
type Result struct {
	Vector []float32
	Err    error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Failure wraps reason into a failed Result.
func Failure(reason error) Result {
	return Result{Err: reason}
}

var (
	ErrEmptyEmbedding = errors.New("embedding response is empty")
	ErrNotFinite      = errors.New("embedding contains non-finite values")
)

type Client interface {
	// Embed generates the embedding for a single text. The result is
	// validated: non-empty, finite, and of the provider's dimension.
	Embed(ctx context.Context, text string) Result
	// Dimension is the provider's fixed vector length.
	Dimension() int
}

// Validate checks the response shape before a vector is allowed into
// the pipeline. dimension 0 skips the length check.
func Validate(vector []float32, dimension int) error {
	if len(vector) == 0 {
		return ErrEmptyEmbedding
	}
	if dimension > 0 && len(vector) != dimension {
		return fmt.Errorf("expected dimension %d, got %d", dimension, len(vector))
	}
	for _, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrNotFinite
		}
	}
	return nil
}
