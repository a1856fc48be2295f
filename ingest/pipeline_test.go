package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"ragstore/chunker"
	"ragstore/crawler"
	"ragstore/pkg/embedding"
	"ragstore/pkg/sourcestore"
	"ragstore/pkg/vectorindex"
)

// wordTokenizer treats each whitespace-separated word as one token.
type wordTokenizer struct{}

func (wordTokenizer) Encode(text string) []int {
	words := strings.Fields(text)
	return make([]int, len(words))
}

func (wordTokenizer) Decode(tokens []int) string {
	return strings.Repeat("w ", len(tokens))
}

type fakeCrawler struct {
	pages []crawler.Page
	err   error
}

func (f *fakeCrawler) Crawl(ctx context.Context, seedURL string, maxDepth, maxPages int) ([]crawler.Page, error) {
	return f.pages, f.err
}

type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failText string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) embedding.Result {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failText != "" && strings.Contains(text, f.failText) {
		return embedding.Failure(errors.New("provider error"))
	}
	return embedding.Result{Vector: []float32{1, 2, 3}}
}

func (f *fakeEmbedder) Dimension() int { return 3 }

type fakeIndexer struct {
	namespace string
	records   []vectorindex.Record
	failIDs   []string
	err       error
}

func (f *fakeIndexer) UpsertBatch(ctx context.Context, namespace string, records []vectorindex.Record) (vectorindex.UpsertResult, error) {
	f.namespace = namespace
	f.records = append(f.records, records...)
	if f.err != nil {
		return vectorindex.UpsertResult{}, f.err
	}
	return vectorindex.UpsertResult{Upserted: len(records) - len(f.failIDs), FailedIDs: f.failIDs}, nil
}

type fakeRegistry struct {
	existing map[string]bool
	put      []*sourcestore.Source
}

func (f *fakeRegistry) Put(src *sourcestore.Source) error {
	f.put = append(f.put, src)
	return nil
}

func (f *fakeRegistry) Exists(id string) (bool, error) {
	return f.existing[id], nil
}

func newTestPipeline(t *testing.T, crawl Crawler, emb embedding.Client, idx Indexer, reg Registry, dedup DedupPolicy) *Pipeline {
	t.Helper()
	ch, err := chunker.NewWithTokenizer(wordTokenizer{}, 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := New(crawl, ch, emb, idx, reg, Config{
		Namespace:    "kb",
		EmbedWorkers: 2,
		Dedup:        dedup,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(p.Release)
	return p
}

func TestIngestURL_IndexesCrawledPages(t *testing.T) {
	crawl := &fakeCrawler{pages: []crawler.Page{
		{URL: "https://example.com", Depth: 0, Text: "alpha beta. gamma delta."},
		{URL: "https://example.com/a", Depth: 1, Text: "epsilon zeta."},
	}}
	idx := &fakeIndexer{}
	reg := &fakeRegistry{}
	p := newTestPipeline(t, crawl, &fakeEmbedder{}, idx, reg, DedupOverwrite)

	report, err := p.IngestURL(context.Background(), "https://example.com", "research", 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SourceID != "https://example.com" {
		t.Errorf("unexpected source id %q", report.SourceID)
	}
	if report.Chunks == 0 || report.Indexed != report.Chunks {
		t.Errorf("expected all chunks indexed, got %+v", report)
	}
	if idx.namespace != "kb" {
		t.Errorf("unexpected namespace %q", idx.namespace)
	}

	// Chunk indexes run sequentially across pages, and vector ids are
	// derived from them.
	for i, rec := range idx.records {
		if rec.ChunkIndex != i {
			t.Errorf("record %d: expected chunk index %d, got %d", i, i, rec.ChunkIndex)
		}
		wantID := fmt.Sprintf("https://example.com_%d", i)
		if rec.ID != wantID {
			t.Errorf("record %d: expected id %q, got %q", i, wantID, rec.ID)
		}
		if rec.Category != "research" {
			t.Errorf("record %d: expected category carried into payload, got %q", i, rec.Category)
		}
	}

	if len(reg.put) != 1 || reg.put[0].Origin != sourcestore.OriginURL {
		t.Fatalf("expected one url source registered, got %+v", reg.put)
	}
	if reg.put[0].ChunkCount != report.Chunks {
		t.Errorf("registry chunk count %d, report %d", reg.put[0].ChunkCount, report.Chunks)
	}
}

func TestIngestURL_SkipsFailedEmbeddings(t *testing.T) {
	crawl := &fakeCrawler{pages: []crawler.Page{
		{URL: "https://example.com", Text: "good one. poison pill. good two."},
	}}
	idx := &fakeIndexer{}
	reg := &fakeRegistry{}
	p := newTestPipeline(t, crawl, &fakeEmbedder{failText: "poison"}, idx, reg, DedupOverwrite)

	report, err := p.IngestURL(context.Background(), "https://example.com", "", 0, 1)
	if err != nil {
		t.Fatalf("a failed embedding must not fail the ingestion: %v", err)
	}
	if report.Skipped != 1 {
		t.Errorf("expected 1 skipped chunk, got %d", report.Skipped)
	}
	if report.Indexed != report.Chunks-1 {
		t.Errorf("expected %d indexed, got %d", report.Chunks-1, report.Indexed)
	}
	for _, rec := range idx.records {
		if strings.Contains(rec.Text, "poison") {
			t.Error("chunk with failed embedding reached the index")
		}
	}
}

func TestIngestURL_DedupSkip(t *testing.T) {
	reg := &fakeRegistry{existing: map[string]bool{"https://example.com": true}}
	crawl := &fakeCrawler{pages: []crawler.Page{{Text: "text."}}}
	p := newTestPipeline(t, crawl, &fakeEmbedder{}, &fakeIndexer{}, reg, DedupSkip)

	_, err := p.IngestURL(context.Background(), "https://example.com", "", 0, 1)
	if !errors.Is(err, ErrAlreadyIngested) {
		t.Fatalf("expected ErrAlreadyIngested, got %v", err)
	}
}

func TestIngestURL_DedupOverwriteProceeds(t *testing.T) {
	reg := &fakeRegistry{existing: map[string]bool{"https://example.com": true}}
	crawl := &fakeCrawler{pages: []crawler.Page{{Text: "fresh text."}}}
	idx := &fakeIndexer{}
	p := newTestPipeline(t, crawl, &fakeEmbedder{}, idx, reg, DedupOverwrite)

	report, err := p.IngestURL(context.Background(), "https://example.com", "", 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Indexed == 0 {
		t.Error("expected re-ingestion to index under the overwrite policy")
	}
}

func TestIngestURL_NoContent(t *testing.T) {
	crawl := &fakeCrawler{pages: nil}
	p := newTestPipeline(t, crawl, &fakeEmbedder{}, &fakeIndexer{}, &fakeRegistry{}, DedupOverwrite)

	_, err := p.IngestURL(context.Background(), "https://example.com", "", 1, 10)
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestIngestText_GeneratesSourceID(t *testing.T) {
	idx := &fakeIndexer{}
	reg := &fakeRegistry{}
	p := newTestPipeline(t, &fakeCrawler{}, &fakeEmbedder{}, idx, reg, DedupOverwrite)

	report, err := p.IngestText(context.Background(), "some pasted notes.", "notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(report.SourceID, "text_") {
		t.Errorf("expected generated source id, got %q", report.SourceID)
	}
	if len(reg.put) != 1 || reg.put[0].Origin != sourcestore.OriginText {
		t.Fatalf("expected one text source registered, got %+v", reg.put)
	}
}

func TestIngestDocument(t *testing.T) {
	idx := &fakeIndexer{}
	reg := &fakeRegistry{}
	p := newTestPipeline(t, &fakeCrawler{}, &fakeEmbedder{}, idx, reg, DedupOverwrite)

	report, err := p.IngestDocument(context.Background(), "report.pdf", "quarterly numbers.", "finance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SourceID != "report.pdf" {
		t.Errorf("expected document name as source id, got %q", report.SourceID)
	}
	if len(reg.put) != 1 || reg.put[0].Origin != sourcestore.OriginFile {
		t.Fatalf("expected one file source registered, got %+v", reg.put)
	}
}

func TestIngest_ReportsDroppedRecords(t *testing.T) {
	crawl := &fakeCrawler{pages: []crawler.Page{{Text: "one. two."}}}
	idx := &fakeIndexer{failIDs: []string{"https://example.com_1"}}
	p := newTestPipeline(t, crawl, &fakeEmbedder{}, idx, &fakeRegistry{}, DedupOverwrite)

	report, err := p.IngestURL(context.Background(), "https://example.com", "", 0, 1)
	if err != nil {
		t.Fatalf("a dropped record must not fail the ingestion: %v", err)
	}
	if len(report.FailedRecords) != 1 {
		t.Errorf("expected 1 failed record reported, got %v", report.FailedRecords)
	}
}

func TestIngestURL_CrawlErrorIsFatal(t *testing.T) {
	crawl := &fakeCrawler{err: errors.New("seed unreachable")}
	p := newTestPipeline(t, crawl, &fakeEmbedder{}, &fakeIndexer{}, &fakeRegistry{}, DedupOverwrite)

	if _, err := p.IngestURL(context.Background(), "https://example.com", "", 1, 10); err == nil {
		t.Fatal("expected error when the crawl itself fails")
	}
}
