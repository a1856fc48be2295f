package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"ragstore/chunker"
	"ragstore/crawler"
	"ragstore/pkg/embedding"
	"ragstore/pkg/sourcestore"
	"ragstore/pkg/vectorindex"
)

var (
	ErrAlreadyIngested = errors.New("source already ingested")
	ErrNoContent       = errors.New("no content to ingest")
)

// DedupPolicy decides what happens when a source id is ingested twice.
// Overwrite relies on deterministic vector ids superseding the previous
// points; Skip refuses the second ingestion outright.
type DedupPolicy string

const (
	DedupOverwrite DedupPolicy = "overwrite"
	DedupSkip      DedupPolicy = "skip"
)

type Config struct {
	Namespace    string
	EmbedWorkers int
	Dedup        DedupPolicy
}

type Crawler interface {
	Crawl(ctx context.Context, seedURL string, maxDepth, maxPages int) ([]crawler.Page, error)
}

type Indexer interface {
	UpsertBatch(ctx context.Context, namespace string, records []vectorindex.Record) (vectorindex.UpsertResult, error)
}

type Registry interface {
	Put(src *sourcestore.Source) error
	Exists(id string) (bool, error)
}

// Report summarizes one ingestion. Skipped counts chunks dropped on
// embedding failure; FailedRecords lists vector ids the index dropped.
type Report struct {
	SourceID      string
	Chunks        int
	Indexed       int
	Skipped       int
	FailedRecords []string
}

// Pipeline turns raw sources into indexed vectors: crawl or accept
// text, chunk, embed concurrently, upsert in batches, then record the
// source in the registry. A chunk whose embedding fails is skipped, not
// fatal.
type Pipeline struct {
	crawler  Crawler
	chunker  *chunker.Chunker
	embedder embedding.Client
	index    Indexer
	sources  Registry
	pool     *ants.Pool
	config   Config
	logger   *zap.Logger
}

func New(crawl Crawler, chunk *chunker.Chunker, embedder embedding.Client, index Indexer, sources Registry, config Config, logger *zap.Logger) (*Pipeline, error) {
	if config.EmbedWorkers <= 0 {
		config.EmbedWorkers = 4
	}
	if config.Dedup == "" {
		config.Dedup = DedupOverwrite
	}

	pool, err := ants.NewPool(config.EmbedWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}

	return &Pipeline{
		crawler:  crawl,
		chunker:  chunk,
		embedder: embedder,
		index:    index,
		sources:  sources,
		pool:     pool,
		config:   config,
		logger:   logger,
	}, nil
}

func (p *Pipeline) Release() {
	p.pool.Release()
}

// IngestURL crawls from seedURL and indexes everything it finds under
// the seed URL as source id. Chunk indexes run sequentially across the
// crawled pages in visitation order.
func (p *Pipeline) IngestURL(ctx context.Context, seedURL, category string, maxDepth, maxPages int) (*Report, error) {
	if err := p.checkDedup(seedURL); err != nil {
		return nil, err
	}

	pages, err := p.crawler.Crawl(ctx, seedURL, maxDepth, maxPages)
	if err != nil {
		return nil, fmt.Errorf("crawl of %q failed: %w", seedURL, err)
	}

	var chunks []chunker.Chunk
	for _, page := range pages {
		for _, ch := range p.chunker.Chunk(page.Text) {
			ch.Index = len(chunks)
			chunks = append(chunks, ch)
		}
	}

	return p.ingestChunks(ctx, seedURL, category, sourcestore.OriginURL, chunks)
}

// IngestText indexes free-form text under a generated source id.
func (p *Pipeline) IngestText(ctx context.Context, text, category string) (*Report, error) {
	sourceID := "text_" + uuid.NewString()
	return p.ingestChunks(ctx, sourceID, category, sourcestore.OriginText, p.chunker.Chunk(text))
}

// IngestDocument indexes the already-extracted text of a document under
// its name. Extraction happens upstream.
func (p *Pipeline) IngestDocument(ctx context.Context, name, text, category string) (*Report, error) {
	if err := p.checkDedup(name); err != nil {
		return nil, err
	}
	return p.ingestChunks(ctx, name, category, sourcestore.OriginFile, p.chunker.Chunk(text))
}

func (p *Pipeline) checkDedup(sourceID string) error {
	if p.config.Dedup != DedupSkip {
		return nil
	}
	exists, err := p.sources.Exists(sourceID)
	if err != nil {
		return fmt.Errorf("dedup lookup for %q failed: %w", sourceID, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyIngested, sourceID)
	}
	return nil
}

func (p *Pipeline) ingestChunks(ctx context.Context, sourceID, category string, origin sourcestore.Origin, chunks []chunker.Chunk) (*Report, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, sourceID)
	}

	results := p.embedAll(ctx, chunks)

	report := &Report{SourceID: sourceID, Chunks: len(chunks)}
	records := make([]vectorindex.Record, 0, len(chunks))
	for i, res := range results {
		if !res.OK() {
			p.logger.Warn("skipping chunk with failed embedding",
				zap.String("source_id", sourceID),
				zap.Int("chunk_index", chunks[i].Index),
				zap.Error(res.Err))
			report.Skipped++
			continue
		}
		records = append(records, vectorindex.Record{
			ID:         fmt.Sprintf("%s_%d", sourceID, chunks[i].Index),
			SourceID:   sourceID,
			ChunkIndex: chunks[i].Index,
			Category:   category,
			Text:       chunks[i].Text,
			Vector:     res.Vector,
		})
	}

	if len(records) > 0 {
		result, err := p.index.UpsertBatch(ctx, p.config.Namespace, records)
		if err != nil {
			return nil, fmt.Errorf("indexing of %q failed: %w", sourceID, err)
		}
		report.Indexed = result.Upserted
		report.FailedRecords = result.FailedIDs
	}

	src := &sourcestore.Source{
		ID:            sourceID,
		Category:      category,
		Origin:        origin,
		ChunkCount:    len(chunks),
		SkippedChunks: report.Skipped,
		IngestedAt:    time.Now().UTC(),
	}
	if err := p.sources.Put(src); err != nil {
		// The vectors are already indexed; losing the registry entry is
		// not worth failing the ingestion over.
		p.logger.Error("failed to record source",
			zap.String("source_id", sourceID),
			zap.Error(err))
	}

	p.logger.Info("ingestion finished",
		zap.String("source_id", sourceID),
		zap.Int("chunks", report.Chunks),
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed_records", len(report.FailedRecords)))
	return report, nil
}

// embedAll runs the embedding calls on the worker pool and returns
// results positionally aligned with chunks.
func (p *Pipeline) embedAll(ctx context.Context, chunks []chunker.Chunk) []embedding.Result {
	results := make([]embedding.Result, len(chunks))

	var wg sync.WaitGroup
	for i := range chunks {
		i := i
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			results[i] = p.embedder.Embed(ctx, chunks[i].Text)
		})
		if err != nil {
			wg.Done()
			results[i] = embedding.Failure(fmt.Errorf("pool submit failed: %w", err))
		}
	}
	wg.Wait()

	return results
}
