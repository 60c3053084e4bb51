// Package server hosts the HTTP API of the ROM build daemon: build control,
// status and log streaming, build history, source search, and system
// dependency management.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/rombuilder/internal/config"
	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/metrics"
	"git.home.luguber.info/inful/rombuilder/internal/server/handlers"
	"git.home.luguber.info/inful/rombuilder/internal/server/middleware"
)

// MetricsProvider is implemented by recorders that expose an HTTP scrape
// endpoint. The Prometheus recorder implements it; the noop one does not.
type MetricsProvider interface {
	HTTPHandler() http.Handler
}

// Server serves the build API on a single listener.
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	recorder metrics.Recorder

	buildHandlers  *handlers.BuildHandlers
	apiHandlers    *handlers.APIHandlers
	searchHandlers *handlers.SearchHandlers
	systemHandlers *handlers.SystemHandlers

	httpServer *http.Server
}

// New creates a server wired to the given services. recorder may be nil,
// in which case request metrics are discarded.
func New(cfg *config.Config, builds handlers.BuildService, searcher handlers.Searcher, system handlers.SystemService, recorder metrics.Recorder) *Server {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Server{
		config:         cfg,
		logger:         slog.Default(),
		recorder:       recorder,
		buildHandlers:  handlers.NewBuildHandlers(builds),
		apiHandlers:    handlers.NewAPIHandlers(),
		searchHandlers: handlers.NewSearchHandlers(searcher),
		systemHandlers: handlers.NewSystemHandlers(system),
	}
}

// Start binds the listener and begins serving. The bind is performed
// synchronously so configuration errors (port in use, bad address) surface
// here instead of inside the serve goroutine.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, fmt.Sprintf("%d", s.config.Server.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return derrors.DaemonError(fmt.Sprintf("failed to bind %s", addr)).WithContext("cause", err.Error())
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Build API server error", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("Build API server started", slog.String("addr", addr))
	return nil
}

// Stop gracefully shuts down the server, waiting for in-flight requests
// up to the context deadline. A running build is not interrupted.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("build API server shutdown: %w", err)
	}
	s.logger.Info("Build API server stopped")
	return nil
}

// Handler builds the full route table wrapped in the middleware chain.
// Exposed separately so tests can drive the mux with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.apiHandlers.HandleHealth)

	mux.HandleFunc("/api/build/start", s.buildHandlers.HandleStartBuild)
	mux.HandleFunc("/api/build/status", s.buildHandlers.HandleBuildStatus)
	mux.HandleFunc("/api/build/logs", s.buildHandlers.HandleBuildLogs)
	mux.HandleFunc("/api/builds/history", s.buildHandlers.HandleBuildHistory)
	mux.HandleFunc("/api/builds/{id}", s.buildHandlers.HandleGetBuild)

	mux.HandleFunc("/api/search/github", s.searchHandlers.HandleSearchGitHub)
	mux.HandleFunc("/api/search/gitlab", s.searchHandlers.HandleSearchGitLab)

	mux.HandleFunc("/api/system/check", s.systemHandlers.HandleSystemCheck)
	mux.HandleFunc("/api/system/install-dependencies", s.systemHandlers.HandleInstallDependencies)

	if provider, ok := s.recorder.(MetricsProvider); ok {
		mux.Handle(s.config.Server.MetricsPath, provider.HTTPHandler())
	}

	adapter := derrors.NewHTTPErrorAdapter(s.logger)
	chain := middleware.Chain(s.logger, adapter, s.recorder)
	return chain(mux)
}
