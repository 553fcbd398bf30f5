package main

import (
	"flag"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"

	"github.com/collinmckay/vulnsuite/internal/analysis"
	"github.com/collinmckay/vulnsuite/internal/config"
	"github.com/collinmckay/vulnsuite/internal/database"
	"github.com/collinmckay/vulnsuite/internal/server"
	"github.com/collinmckay/vulnsuite/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := exec.LookPath(cfg.Analyzer.Interpreter); err != nil {
		slog.Warn("analyzer interpreter not found, analysis runs will fail", "interpreter", cfg.Analyzer.Interpreter)
	}

	files := storage.New(cfg.Storage.UploadsDir, cfg.Storage.AnalysisDir, cfg.Storage.MaxBytes)

	// Reconcile disk state with the store before serving: uploads and
	// analysis output left behind by deleted projects are removed here.
	refs, err := db.ListProjectRefs()
	if err != nil {
		slog.Warn("skipping storage sweep", "error", err)
	} else {
		files.Sweep(refs)
	}

	registry := analysis.NewRegistry()
	generation := new(atomic.Int64)

	srv := server.New(cfg, db, files, registry, generation)

	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		db.Close()
		os.Exit(1)
	}
}
