// Package httpapi exposes the service over HTTP: operational endpoints
// (health, readiness, metrics) plus the consumer-facing snapshot and
// per-click context routes.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/driftline/constellation-tracker/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SnapshotSource serves the latest tracked snapshot and readiness.
type SnapshotSource interface {
	Latest() (domain.ConstellationSnapshot, error)
	CheckReadiness(ctx context.Context) error
}

// Server exposes health, readiness, metrics, and snapshot HTTP endpoints.
type Server struct {
	httpServer *http.Server
	source     SnapshotSource
	contextSvc domain.ContextProvider // nil when the lookup is disabled
	logger     *slog.Logger
}

// NewServer creates the HTTP server. Pass a nil context provider to disable
// the /api/v1/context route (it answers 503).
func NewServer(addr string, source SnapshotSource, contextSvc domain.ContextProvider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		source:     source,
		contextSvc: contextSvc,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/constellation", s.handleConstellation)
	mux.HandleFunc("GET /api/v1/context", s.handleContext)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.source.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleConstellation(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.source.Latest()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	if s.contextSvc == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "context lookup disabled"})
		return
	}

	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lat and lon query params must be valid coordinates"})
		return
	}

	result, err := s.contextSvc.Lookup(r.Context(), lat, lon)
	if err != nil {
		s.logger.Warn("context lookup failed", "lat", lat, "lon", lon, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "context lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
