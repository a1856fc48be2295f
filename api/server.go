package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ragstore/answer"
	"ragstore/ingest"
	"ragstore/pkg/sourcestore"
)

type Ingestor interface {
	IngestURL(ctx context.Context, seedURL, category string, maxDepth, maxPages int) (*ingest.Report, error)
	IngestText(ctx context.Context, text, category string) (*ingest.Report, error)
	IngestDocument(ctx context.Context, name, text, category string) (*ingest.Report, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string) (*answer.Response, error)
}

type SourceLister interface {
	List() ([]sourcestore.Source, error)
}

// CrawlDefaults apply when a scrape request leaves the budgets unset.
type CrawlDefaults struct {
	MaxDepth int
	MaxPages int
}

type Server struct {
	ingestor Ingestor
	answerer Answerer
	sources  SourceLister
	defaults CrawlDefaults
	logger   *zap.Logger
}

func NewServer(ingestor Ingestor, answerer Answerer, sources SourceLister, defaults CrawlDefaults, logger *zap.Logger) *Server {
	return &Server{
		ingestor: ingestor,
		answerer: answerer,
		sources:  sources,
		defaults: defaults,
		logger:   logger,
	}
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/scrape", s.handleScrape)
	mux.HandleFunc("/api/sources", s.handleSources)
	mux.HandleFunc("/api/query", s.handleQuery)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}

func (s *Server) Start(port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting api server", zap.Int("port", port))
	return srv.ListenAndServe()
}
