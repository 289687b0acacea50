// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"neura-search/internal/common/logger"
	"neura-search/internal/models"
	"neura-search/internal/search"
	"neura-search/internal/stream"
)

// SearchService is the pipeline surface the HTTP layer drives.
type SearchService interface {
	Run(ctx context.Context, req *models.SearchRequest, w search.StreamWriter)
	Debug(ctx context.Context, req *models.SearchRequest, alphaOverride *float64) (*search.DebugResult, error)
}

// Pinger reports backing-store liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the search pipeline to its HTTP surface.
type Server struct {
	svc    SearchService
	db     Pinger
	cache  Pinger
	logger logger.Logger
}

func New(svc SearchService, db, cache Pinger, log logger.Logger) *Server {
	return &Server{svc: svc, db: db, cache: cache, logger: log}
}

// Routes builds the full handler mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/debug/search", s.handleDebugSearch)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// handleSearch validates the request and hands it to the pipeline. Input
// errors are the only errors reported as HTTP statuses; everything past
// validation is reported on the NDJSON stream.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if verr := search.ValidateRequest(&req); verr != nil {
		writeJSONError(w, http.StatusBadRequest, verr.Message)
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = models.ModeCandidates
	}

	writer := stream.NewWriter(r.Context(), w, mode)
	s.svc.Run(r.Context(), &req, writer)
}

type debugRequest struct {
	models.SearchRequest
	Alpha *float64 `json:"alpha,omitempty"`
}

// handleDebugSearch runs the pipeline synchronously and returns the
// intermediate artifacts, optionally with a fusion-weight override.
func (s *Server) handleDebugSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req debugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if verr := search.ValidateRequest(&req.SearchRequest); verr != nil {
		writeJSONError(w, http.StatusBadRequest, verr.Message)
		return
	}
	if req.Alpha != nil && (*req.Alpha < 0 || *req.Alpha > 1) {
		writeJSONError(w, http.StatusBadRequest, "alpha must be in [0, 1]")
		return
	}

	result, err := s.svc.Debug(r.Context(), &req.SearchRequest, req.Alpha)
	if err != nil {
		s.logger.WithError(err).Error("debug search failed", nil)
		writeJSONError(w, http.StatusBadGateway, "search pipeline failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady checks the backing stores the pipeline cannot run without.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready", "postgres": err.Error(),
			})
			return
		}
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready", "redis": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
