package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	AppPort int

	OpenAIAPIKey       string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string

	QdrantHost string
	QdrantPort int
	Namespace  string

	SourceStorePath string
	ExclusionsPath  string

	ChunkMaxTokens     int
	ChunkOverlapTokens int

	CrawlMaxDepth int
	CrawlMaxPages int

	EmbedWorkers int
	DedupPolicy  string

	TopK          int
	ContextBudget int
}

func Load() (*Config, error) {
	appPort, err := strconv.Atoi(getEnvDefault("APP_PORT", "8080"))
	if err != nil {
		return nil, err
	}

	return &Config{
		AppPort: appPort,

		OpenAIAPIKey:       getEnv("OPENAI_API_KEY"),
		EmbeddingModel:     getEnvDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
		LLMModel:           getEnvDefault("LLM_MODEL", "gpt-4o-mini"),

		QdrantHost: getEnvDefault("QDRANT_HOST", "localhost"),
		QdrantPort: getEnvInt("QDRANT_PORT", 6334),
		Namespace:  getEnvDefault("NAMESPACE", "global_knowledge_base"),

		SourceStorePath: getEnvDefault("SOURCE_STORE_PATH", "data/sources.db"),
		ExclusionsPath:  os.Getenv("EXCLUSIONS_PATH"),

		ChunkMaxTokens:     getEnvInt("CHUNK_MAX_TOKENS", 500),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 50),

		CrawlMaxDepth: getEnvInt("CRAWL_MAX_DEPTH", 2),
		CrawlMaxPages: getEnvInt("CRAWL_MAX_PAGES", 100),

		EmbedWorkers: getEnvInt("EMBED_WORKERS", 4),
		DedupPolicy:  getEnvDefault("DEDUP_POLICY", "overwrite"),

		TopK:          getEnvInt("QUERY_TOP_K", 5),
		ContextBudget: getEnvInt("CONTEXT_BUDGET", 12000),
	}, nil
}

func getEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("Environment variable %s is required but not set", key)
	}
	return value
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Environment variable %s must be an integer, got %q", key, value)
	}
	return n
}
