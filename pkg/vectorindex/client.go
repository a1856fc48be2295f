package vectorindex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ragstore/pkg/embedding"
	"ragstore/pkg/retry"
)

type Config struct {
	// Dimension is the fixed embedding length for every namespace; a
	// record of any other length is corrupt and rejected before upsert.
	Dimension int
	// BatchSize bounds how many records one upsert call carries.
	BatchSize int
	// BatchDelay spaces out consecutive batch calls.
	BatchDelay time.Duration
	Retry      retry.Policy
}

func DefaultConfig(dimension int) Config {
	return Config{
		Dimension:  dimension,
		BatchSize:  50,
		BatchDelay: 200 * time.Millisecond,
		Retry:      retry.DefaultPolicy(),
	}
}

// Client adds batching, graceful degradation and retry on top of a raw
// Store.
type Client struct {
	store  Store
	config Config
	logger *zap.Logger
}

func NewClient(store Store, config Config, logger *zap.Logger) *Client {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.DefaultPolicy()
	}
	return &Client{store: store, config: config, logger: logger}
}

// UpsertBatch writes records in batches of at most BatchSize. A failed
// batch degrades to one-by-one upserts so a single bad record cannot
// lose the rest of its batch; records that still fail are dropped and
// reported in the result, never fatal. Records whose vector length does
// not match the namespace dimension are rejected up front.
func (c *Client) UpsertBatch(ctx context.Context, namespace string, records []Record) (UpsertResult, error) {
	var result UpsertResult

	valid := make([]Record, 0, len(records))
	for _, rec := range records {
		if len(rec.Vector) != c.config.Dimension {
			c.logger.Warn("rejecting record with wrong dimension",
				zap.String("vector_id", rec.ID),
				zap.Int("got", len(rec.Vector)),
				zap.Int("want", c.config.Dimension))
			result.FailedIDs = append(result.FailedIDs, rec.ID)
			continue
		}
		valid = append(valid, rec)
	}
	if len(valid) == 0 {
		return result, nil
	}

	if err := c.store.EnsureNamespace(ctx, namespace, c.config.Dimension); err != nil {
		return result, fmt.Errorf("failed to ensure namespace %q: %w", namespace, err)
	}

	for start := 0; start < len(valid); start += c.config.BatchSize {
		end := start + c.config.BatchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]

		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := c.store.Upsert(ctx, namespace, batch); err != nil {
			c.logger.Warn("batch upsert failed, falling back to single upserts",
				zap.String("namespace", namespace),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			c.upsertOneByOne(ctx, namespace, batch, &result)
		} else {
			result.Upserted += len(batch)
		}

		if end < len(valid) && c.config.BatchDelay > 0 {
			timer := time.NewTimer(c.config.BatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, nil
}

func (c *Client) upsertOneByOne(ctx context.Context, namespace string, batch []Record, result *UpsertResult) {
	for _, rec := range batch {
		if ctx.Err() != nil {
			result.FailedIDs = append(result.FailedIDs, rec.ID)
			continue
		}
		if err := c.store.Upsert(ctx, namespace, []Record{rec}); err != nil {
			c.logger.Warn("dropping record after single upsert failed",
				zap.String("vector_id", rec.ID),
				zap.Error(err))
			result.FailedIDs = append(result.FailedIDs, rec.ID)
			continue
		}
		result.Upserted++
	}
}

// Query returns the top-k matches ranked by similarity. Matches without
// stored text are filtered out. Transient failures are retried with
// backoff; exhaustion returns ErrUnavailable, which is not the same as
// an empty match list.
func (c *Client) Query(ctx context.Context, namespace string, vector []float32, k int) ([]Match, error) {
	if err := embedding.Validate(vector, c.config.Dimension); err != nil {
		return nil, fmt.Errorf("invalid query vector: %w", err)
	}

	var matches []Match
	err := c.config.Retry.Do(ctx, func(ctx context.Context) error {
		var queryErr error
		matches, queryErr = c.store.Query(ctx, namespace, vector, k)
		return queryErr
	})
	if err != nil {
		c.logger.Error("query retries exhausted",
			zap.String("namespace", namespace),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	filtered := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Text == "" {
			c.logger.Warn("dropping match without stored text",
				zap.String("source_id", m.SourceID))
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered, nil
}
