// Package server provides the HTTP API for the insight pipeline.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonathan/insight-pipeline/internal/db"
	"github.com/jonathan/insight-pipeline/internal/metrics"
	"github.com/jonathan/insight-pipeline/internal/pipeline"
	"github.com/jonathan/insight-pipeline/internal/types"
)

// DefaultMaxUploadBytes bounds request bodies carrying inline datasets
const DefaultMaxUploadBytes = 32 << 20

// OrchestratorFactory builds an orchestrator that reports progress to onProgress.
// onProgress may be nil.
type OrchestratorFactory func(onProgress pipeline.ProgressCallback) (*pipeline.Orchestrator, error)

// DatasetLoader fetches a remote dataset
type DatasetLoader interface {
	LoadURL(ctx context.Context, url string) (*types.Table, error)
}

// MetadataFunc describes the columns of a dataset
type MetadataFunc func(ctx context.Context, table *types.Table) (types.Metadata, error)

// RunStore is the read side of the run audit store
type RunStore interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*db.Run, error)
	ListRuns(ctx context.Context, filters db.RunFilters) ([]db.Run, error)
	ListArtifacts(ctx context.Context, runID uuid.UUID) ([]db.ArtifactSummary, error)
	GetArtifact(ctx context.Context, runID uuid.UUID, step string) (*db.Artifact, error)
	DeleteRun(ctx context.Context, runID uuid.UUID) error
}

// Config holds server configuration
type Config struct {
	Addr            string
	Logger          *slog.Logger
	NewOrchestrator OrchestratorFactory
	Metadata        MetadataFunc
	Loader          DatasetLoader // Optional; required for dataset_url requests
	Runs            RunStore      // Optional; enables the /runs endpoints
	MaxUploadBytes  int64
	AllowedURLHosts []string // Hosts dataset_url may name; empty disables remote datasets
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	cfg        Config
	log        *slog.Logger
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.NewOrchestrator == nil {
		return nil, fmt.Errorf("server: orchestrator factory is required")
	}
	if cfg.Metadata == nil {
		return nil, fmt.Errorf("server: metadata function is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{cfg: cfg, log: cfg.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("POST /run/stream", s.handleRunStream)
	mux.HandleFunc("POST /metadata", s.handleMetadata)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Run history, backed by the audit store
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("DELETE /runs/{id}", s.handleDeleteRun)
	mux.HandleFunc("GET /runs/{id}/artifacts", s.handleRunArtifacts)
	mux.HandleFunc("GET /runs/{id}/artifacts/{step}", s.handleRunArtifact)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      metrics.Middleware(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for pipeline runs
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request completed", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "elapsed", time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"run_history":  s.cfg.Runs != nil,
		"dataset_urls": s.cfg.Loader != nil,
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("error encoding JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// failure maps err to a status code and writes it
func (s *Server) failure(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	s.errorResponse(w, status, err.Error())
}
