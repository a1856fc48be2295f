package vectorindex

import (
	"context"
	"errors"
)

// Record is one embedding persisted in the index. ID is the vector id,
// source id plus chunk index, unique within a namespace. Text is the
// original chunk text; records without it are useless for retrieval
// and are filtered out on the query side.
type Record struct {
	ID         string
	SourceID   string
	ChunkIndex int
	Category   string
	Text       string
	Vector     []float32
}

// Match is one query hit, ranked by cosine similarity.
type Match struct {
	Text     string
	Score    float32
	SourceID string
}

// UpsertResult reports how an upsert went: full success, partial
// failure with the ids that were dropped, or nothing written.
type UpsertResult struct {
	Upserted  int
	FailedIDs []string
}

func (r UpsertResult) Partial() bool {
	return r.Upserted > 0 && len(r.FailedIDs) > 0
}

// ErrUnavailable marks retrieval exhausting its retries. It is distinct
// from a successful query with zero matches so callers can tell
// "nothing relevant" from "the index is down".
var ErrUnavailable = errors.New("vector index unavailable")

// Store is the raw backend surface: one network call per method, no
// batching or retry policy. The Client layers those on top so they can
// be tested against a fake.
type Store interface {
	EnsureNamespace(ctx context.Context, namespace string, dimension int) error
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]Match, error)
}
