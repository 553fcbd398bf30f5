package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/collinmckay/vulnsuite/internal/analysis"
	"github.com/collinmckay/vulnsuite/internal/auth"
	"github.com/collinmckay/vulnsuite/internal/config"
	"github.com/collinmckay/vulnsuite/internal/database"
	"github.com/collinmckay/vulnsuite/internal/storage"
)

type Server struct {
	cfg      *config.Config
	db       *database.DB
	files    *storage.Store
	auth     *auth.Service
	registry *analysis.Registry
	runner   *analysis.Runner
	hub      *Hub
	mux      *http.ServeMux
}

// New wires the server. Bumping the shared generation counter here
// marks jobs spawned by any previous incarnation as stale: their
// completions must not write to the store.
func New(cfg *config.Config, db *database.DB, files *storage.Store, registry *analysis.Registry, generation *atomic.Int64) *Server {
	generation.Add(1)

	hub := NewHub()
	spec := analysis.AnalyzerSpec{
		Interpreter: cfg.Analyzer.Interpreter,
		Script:      cfg.Analyzer.Script,
		MergeScript: cfg.Analyzer.MergeScript,
	}

	s := &Server{
		cfg:      cfg,
		db:       db,
		files:    files,
		auth:     auth.NewService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour),
		registry: registry,
		runner:   analysis.NewRunner(db, files, registry, hub, spec, generation),
		hub:      hub,
		mux:      http.NewServeMux(),
	}

	s.registerRoutes()
	return s
}

func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	slog.Info("starting server", "addr", addr)

	return http.ListenAndServe(addr, s.Handler())
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return recoveryMiddleware(securityHeaders(loggingMiddleware(s.corsMiddleware(s.mux))))
}

func (s *Server) registerRoutes() {
	// Account lifecycle (unauthenticated)
	s.mux.HandleFunc("/api/create-account", s.handleCreateAccount)
	s.mux.HandleFunc("/api/sign-in", s.handleSignIn)
	s.mux.HandleFunc("/api/reset-password", s.handleResetPassword)

	// Session
	s.mux.HandleFunc("/api/logout", s.authed(s.handleLogout))
	s.mux.HandleFunc("/api/verify-token", s.authed(s.handleVerifyToken))

	// Projects
	s.mux.HandleFunc("/api/create-project", s.authed(s.handleCreateProject))
	s.mux.HandleFunc("/api/fetch-projects", s.authed(s.handleFetchProjects))
	s.mux.HandleFunc("/api/fetch-analyzed-projects", s.authed(s.handleFetchAnalyzedProjects))
	s.mux.HandleFunc("/api/delete-project/", s.authed(s.handleDeleteProject))
	s.mux.HandleFunc("/api/download-nessus/", s.authed(s.handleDownloadNessus))

	// Analysis
	s.mux.HandleFunc("/api/start-analysis", s.authed(s.handleStartAnalysis))
	s.mux.HandleFunc("/api/analysis-status/", s.authed(s.handleAnalysisStatus))
	s.mux.HandleFunc("/api/create-excel", s.authed(s.handleCreateExcel))

	// Housekeeping
	s.mux.HandleFunc("/api/storage-usage", s.authed(s.handleStorageUsage))

	// WebSocket
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}
