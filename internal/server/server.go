// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/FranksOps/tubebrief/internal/metrics"
	"github.com/FranksOps/tubebrief/internal/pipeline"
	"github.com/FranksOps/tubebrief/internal/storage"
)

// Pipeline is the part of pipeline.Orchestrator the handlers need.
type Pipeline interface {
	Execute(ctx context.Context, req pipeline.Request) pipeline.Outcome
	Acquire(ctx context.Context, req pipeline.Request) pipeline.Acquisition
}

var _ Pipeline = (*pipeline.Orchestrator)(nil)

// Options configures optional collaborators.
type Options struct {
	// History receives one RunRecord per pipeline or scrape request. Nil
	// disables recording and the /api/runs endpoints.
	History storage.Backend
	Logger  *slog.Logger
	// SaveTimeout bounds each history write. Zero means 5s.
	SaveTimeout time.Duration
}

// Server encapsulates the HTTP API.
type Server struct {
	pipeline    Pipeline
	history     storage.Backend
	logger      *slog.Logger
	saveTimeout time.Duration
	mux         *http.ServeMux

	mu   sync.Mutex
	srv  *http.Server
	addr string
}

// New builds a Server and registers its routes.
func New(p Pipeline, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	saveTimeout := opts.SaveTimeout
	if saveTimeout <= 0 {
		saveTimeout = 5 * time.Second
	}

	s := &Server{
		pipeline:    p,
		history:     opts.History,
		logger:      logger,
		saveTimeout: saveTimeout,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /youtube", s.handleYouTube)
	s.mux.HandleFunc("POST /api/scrape", s.handleScrape)
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
	s.mux.HandleFunc("GET /api/runs/summary", s.handleRunsSummary)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", s.addr)

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed", "err", err)
		}
	}()

	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
