package main

import (
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragstore/answer"
	"ragstore/api"
	"ragstore/chunker"
	"ragstore/config"
	"ragstore/crawler"
	"ragstore/ingest"
	"ragstore/pkg/embedding"
	"ragstore/pkg/llm"
	"ragstore/pkg/qdrantdb"
	"ragstore/pkg/sourcestore"
	"ragstore/pkg/vectorindex"
)

func main() {
	// =========
	// Config
	// =========
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	exclusions, err := config.LoadExclusions(cfg.ExclusionsPath)
	if err != nil {
		log.Fatalf("Failed to load exclusions: %v", err)
	}

	// =========
	// Logging
	// =========
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	// =========
	// Qdrant vector index
	// =========
	qdb, err := qdrantdb.NewClient(cfg.QdrantHost, cfg.QdrantPort, logger)
	if err != nil {
		logger.Fatal("failed to create qdrant client", zap.Error(err))
	}
	defer qdb.Close()
	index := vectorindex.NewClient(qdb, vectorindex.DefaultConfig(cfg.EmbeddingDimension), logger)

	// =========
	// Embedding client
	// =========
	embedder, err := embedding.NewOpenAI(embedding.OpenAIConfig{
		APIKey:    cfg.OpenAIAPIKey,
		Model:     cfg.EmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create embedding client", zap.Error(err))
	}

	// =========
	// LLM client
	// =========
	model, err := llm.New(llm.Config{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		Temperature: 0.7,
	})
	if err != nil {
		logger.Fatal("failed to create llm client", zap.Error(err))
	}

	// =========
	// Source registry
	// =========
	sources, err := sourcestore.Open(cfg.SourceStorePath)
	if err != nil {
		logger.Fatal("failed to open source store", zap.Error(err))
	}
	defer sources.Close()

	// =========
	// Chunker
	// =========
	chunk, err := chunker.New(cfg.ChunkMaxTokens, cfg.ChunkOverlapTokens)
	if err != nil {
		logger.Fatal("failed to create chunker", zap.Error(err))
	}

	// =========
	// Crawler
	// =========
	crawlCfg := crawler.DefaultConfig()
	crawlCfg.ExcludedPatterns = exclusions
	crawl := crawler.New(
		&http.Client{Timeout: 5 * time.Minute},
		crawler.NewContentExtractor(logger),
		crawlCfg,
		logger,
	)

	// =========
	// Ingestion pipeline
	// =========
	pipeline, err := ingest.New(crawl, chunk, embedder, index, sources, ingest.Config{
		Namespace:    cfg.Namespace,
		EmbedWorkers: cfg.EmbedWorkers,
		Dedup:        ingest.DedupPolicy(cfg.DedupPolicy),
	}, logger)
	if err != nil {
		logger.Fatal("failed to create ingestion pipeline", zap.Error(err))
	}
	defer pipeline.Release()

	// =========
	// Answer assembler
	// =========
	assembler := answer.New(embedder, index, model, answer.Config{
		Namespace:     cfg.Namespace,
		TopK:          cfg.TopK,
		ContextBudget: cfg.ContextBudget,
	}, logger)

	// =========
	// API server
	// =========
	server := api.NewServer(pipeline, assembler, sources, api.CrawlDefaults{
		MaxDepth: cfg.CrawlMaxDepth,
		MaxPages: cfg.CrawlMaxPages,
	}, logger)
	if err := server.Start(cfg.AppPort); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
