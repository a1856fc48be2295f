package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"ragstore/ingest"
	"ragstore/pkg/vectorindex"
)

type scrapeRequest struct {
	URL      string `json:"url"`
	Category string `json:"category"`
	MaxDepth *int   `json:"max_depth,omitempty"`
	MaxPages *int   `json:"max_pages,omitempty"`
}

type addSourceRequest struct {
	Name     string `json:"name,omitempty"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

type queryRequest struct {
	Question string `json:"question"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleScrape ingests a website. Partial failures (skipped chunks,
// dropped records) are reported in the body but still succeed; only a
// failure to produce anything at all is an error.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	maxDepth := s.defaults.MaxDepth
	if req.MaxDepth != nil {
		maxDepth = *req.MaxDepth
	}
	maxPages := s.defaults.MaxPages
	if req.MaxPages != nil {
		maxPages = *req.MaxPages
	}

	report, err := s.ingestor.IngestURL(r.Context(), req.URL, req.Category, maxDepth, maxPages)
	if err != nil {
		s.writeIngestError(w, req.URL, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleSources lists ingested sources on GET and ingests text or a
// pre-extracted document on POST.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sources, err := s.sources.List()
		if err != nil {
			s.logger.Error("failed to list sources", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list sources")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": sources})

	case http.MethodPost:
		var req addSourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}

		var report *ingest.Report
		var err error
		if req.Name != "" {
			report, err = s.ingestor.IngestDocument(r.Context(), req.Name, req.Text, req.Category)
		} else {
			report, err = s.ingestor.IngestText(r.Context(), req.Text, req.Category)
		}
		if err != nil {
			s.writeIngestError(w, req.Name, err)
			return
		}
		writeJSON(w, http.StatusOK, report)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleQuery answers a question. Zero matches is a 404 with the fixed
// answer; a retrieval outage is a 503, so clients can tell "nothing
// stored about this" from "try again later".
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	resp, err := s.answerer.Answer(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, vectorindex.ErrUnavailable) {
			s.logger.Warn("retrieval unavailable", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "retrieval is temporarily unavailable")
			return
		}
		s.logger.Error("failed to answer question", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to answer question")
		return
	}

	if len(resp.Citations) == 0 {
		writeJSON(w, http.StatusNotFound, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeIngestError(w http.ResponseWriter, sourceID string, err error) {
	switch {
	case errors.Is(err, ingest.ErrAlreadyIngested):
		writeError(w, http.StatusConflict, "source already ingested")
	case errors.Is(err, ingest.ErrNoContent):
		writeError(w, http.StatusUnprocessableEntity, "no content to ingest")
	default:
		s.logger.Error("ingestion failed",
			zap.String("source_id", sourceID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ingestion failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
