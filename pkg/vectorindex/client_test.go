package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"ragstore/pkg/retry"
)

type fakeStore struct {
	upsertCalls   [][]Record
	queryCalls    int
	failBatchOver int  // batches larger than this fail; 0 disables
	failIDs       map[string]bool
	queryFailures int
	queryErr      error
	matches       []Match
}

func (f *fakeStore) EnsureNamespace(ctx context.Context, namespace string, dimension int) error {
	return nil
}

func (f *fakeStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	f.upsertCalls = append(f.upsertCalls, records)
	if f.failBatchOver > 0 && len(records) > f.failBatchOver {
		return errors.New("batch too large for flaky backend")
	}
	for _, r := range records {
		if f.failIDs[r.ID] {
			return fmt.Errorf("malformed record %s", r.ID)
		}
	}
	return nil
}

func (f *fakeStore) Query(ctx context.Context, namespace string, vector []float32, k int) ([]Match, error) {
	f.queryCalls++
	if f.queryFailures > 0 {
		f.queryFailures--
		return nil, errors.New("transient query error")
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeStore) storedCount() int {
	// counts records in successful calls only when the fake accepted them
	total := 0
	for _, call := range f.upsertCalls {
		ok := true
		if f.failBatchOver > 0 && len(call) > f.failBatchOver {
			ok = false
		}
		for _, r := range call {
			if f.failIDs[r.ID] {
				ok = false
			}
		}
		if ok {
			total += len(call)
		}
	}
	return total
}

func testConfig(dim, batchSize int) Config {
	return Config{
		Dimension:  dim,
		BatchSize:  batchSize,
		BatchDelay: 0,
		Retry:      retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}
}

func makeRecords(n, dim int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			ID:         fmt.Sprintf("src_%d", i),
			SourceID:   "src",
			ChunkIndex: i,
			Text:       fmt.Sprintf("chunk %d", i),
			Vector:     make([]float32, dim),
		}
	}
	return records
}

func TestUpsertBatch_SplitsIntoBatches(t *testing.T) {
	store := &fakeStore{}
	client := NewClient(store, testConfig(4, 50), zap.NewNop())

	result, err := client.UpsertBatch(context.Background(), "ns", makeRecords(120, 4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Upserted != 120 {
		t.Errorf("expected 120 upserted, got %d", result.Upserted)
	}
	if len(store.upsertCalls) != 3 {
		t.Fatalf("expected 3 batch calls, got %d", len(store.upsertCalls))
	}
	wantSizes := []int{50, 50, 20}
	for i, call := range store.upsertCalls {
		if len(call) != wantSizes[i] {
			t.Errorf("batch %d: expected %d records, got %d", i, wantSizes[i], len(call))
		}
	}
}

func TestUpsertBatch_FallbackPreservesValidRecords(t *testing.T) {
	store := &fakeStore{failIDs: map[string]bool{"src_3": true}}
	client := NewClient(store, testConfig(4, 10), zap.NewNop())

	result, err := client.UpsertBatch(context.Background(), "ns", makeRecords(10, 4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Upserted != 9 {
		t.Errorf("expected 9 records preserved via fallback, got %d", result.Upserted)
	}
	if len(result.FailedIDs) != 1 || result.FailedIDs[0] != "src_3" {
		t.Errorf("expected src_3 to be the only failure, got %v", result.FailedIDs)
	}
	if !result.Partial() {
		t.Error("expected a partial result")
	}
	// one failed batch call plus ten single-record calls
	if len(store.upsertCalls) != 11 {
		t.Errorf("expected 11 upsert calls, got %d", len(store.upsertCalls))
	}
}

func TestUpsertBatch_RejectsWrongDimension(t *testing.T) {
	store := &fakeStore{}
	client := NewClient(store, testConfig(4, 10), zap.NewNop())

	records := makeRecords(3, 4)
	records[1].Vector = make([]float32, 7)

	result, err := client.UpsertBatch(context.Background(), "ns", records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Upserted != 2 {
		t.Errorf("expected 2 upserted, got %d", result.Upserted)
	}
	if len(result.FailedIDs) != 1 || result.FailedIDs[0] != "src_1" {
		t.Errorf("expected src_1 rejected, got %v", result.FailedIDs)
	}
	if store.storedCount() != 2 {
		t.Errorf("expected 2 records stored, got %d", store.storedCount())
	}
}

func TestUpsertBatch_EmptyInput(t *testing.T) {
	store := &fakeStore{}
	client := NewClient(store, testConfig(4, 10), zap.NewNop())

	result, err := client.UpsertBatch(context.Background(), "ns", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Upserted != 0 || len(result.FailedIDs) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
	if len(store.upsertCalls) != 0 {
		t.Errorf("expected no upsert calls, got %d", len(store.upsertCalls))
	}
}

func TestQuery_EmptyNamespace(t *testing.T) {
	store := &fakeStore{matches: nil}
	client := NewClient(store, testConfig(3, 10), zap.NewNop())

	matches, err := client.Query(context.Background(), "empty", []float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("zero stored vectors must not be an error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %d", len(matches))
	}
}

func TestQuery_RetriesThenSucceeds(t *testing.T) {
	store := &fakeStore{
		queryFailures: 2,
		matches:       []Match{{Text: "relevant", Score: 0.9, SourceID: "s"}},
	}
	client := NewClient(store, testConfig(3, 10), zap.NewNop())

	matches, err := client.Query(context.Background(), "ns", []float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("expected 1 match, got %d", len(matches))
	}
	if store.queryCalls != 3 {
		t.Errorf("expected 3 query attempts, got %d", store.queryCalls)
	}
}

func TestQuery_ExhaustionReturnsUnavailable(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("index down")}
	client := NewClient(store, testConfig(3, 10), zap.NewNop())

	_, err := client.Query(context.Background(), "ns", []float32{1, 2, 3}, 5)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestQuery_FiltersMatchesWithoutText(t *testing.T) {
	store := &fakeStore{matches: []Match{
		{Text: "has text", Score: 0.9, SourceID: "a"},
		{Text: "", Score: 0.8, SourceID: "b"},
		{Text: "also has text", Score: 0.7, SourceID: "c"},
	}}
	client := NewClient(store, testConfig(3, 10), zap.NewNop())

	matches, err := client.Query(context.Background(), "ns", []float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches after filtering, got %d", len(matches))
	}
	for _, m := range matches {
		if m.Text == "" {
			t.Error("match without text survived filtering")
		}
	}
}

func TestQuery_RejectsInvalidVector(t *testing.T) {
	store := &fakeStore{}
	client := NewClient(store, testConfig(3, 10), zap.NewNop())

	if _, err := client.Query(context.Background(), "ns", []float32{1}, 5); err == nil {
		t.Fatal("expected error for wrong-dimension query vector")
	}
	if store.queryCalls != 0 {
		t.Errorf("invalid vector should not reach the store, got %d calls", store.queryCalls)
	}
}
