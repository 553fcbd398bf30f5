package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/collinmckay/vulnsuite/internal/database"
	"github.com/collinmckay/vulnsuite/internal/exploits"
	"github.com/collinmckay/vulnsuite/internal/storage"
)

var (
	// ErrPreconditionFailed means the project is not ready for analysis:
	// no scan file on disk, no scope IPs, or no allowed-exploit set.
	ErrPreconditionFailed = errors.New("analysis preconditions not met")

	// ErrAnalysisInProgress rejects a start while the registry already
	// holds a processing entry for the project.
	ErrAnalysisInProgress = errors.New("analysis already in progress for this project")

	// ErrResultIncomplete means the analyzer exited 0 but one of the
	// expected artifacts is missing; the run counts as failed.
	ErrResultIncomplete = errors.New("analysis output incomplete")
)

// artifactFiles are the exact outputs a successful analyzer run must
// leave in the output directory.
var artifactFiles = []string{
	"data_with_exploits.csv",
	"ranked_entry_points.csv",
	"entrypoint_most_info.csv",
	"port_0_entries.csv",
	"exploits.json",
}

// Broadcaster carries analyzer output lines to live subscribers.
type Broadcaster interface {
	Broadcast(projectID string, line OutputLine)
}

// AnalyzerSpec describes how to invoke the external analysis scripts.
type AnalyzerSpec struct {
	Interpreter string
	Script      string
	MergeScript string
}

// Runner drives one external analyzer invocation per project to
// completion and reconciles the results into the project store.
type Runner struct {
	db          *database.DB
	files       *storage.Store
	registry    *Registry
	broadcaster Broadcaster
	spec        AnalyzerSpec

	// generation identifies the current server incarnation. A run
	// spawned under an older generation must not write to the store
	// when it completes.
	generation *atomic.Int64
}

func NewRunner(db *database.DB, files *storage.Store, registry *Registry, broadcaster Broadcaster, spec AnalyzerSpec, generation *atomic.Int64) *Runner {
	return &Runner{
		db:          db,
		files:       files,
		registry:    registry,
		broadcaster: broadcaster,
		spec:        spec,
		generation:  generation,
	}
}

// Start validates preconditions, registers the job as processing and
// spawns the analyzer in the background. It returns as soon as the job
// is accepted; outcome is observed through the registry only.
func (r *Runner) Start(project *database.Project) error {
	if project.NessusFilePath == "" {
		return fmt.Errorf("%w: no scan file attached", ErrPreconditionFailed)
	}
	if _, err := os.Stat(project.NessusFilePath); err != nil {
		return fmt.Errorf("%w: scan file missing from disk", ErrPreconditionFailed)
	}
	if len(project.ScopeIPs) == 0 {
		return fmt.Errorf("%w: project has no scope IPs", ErrPreconditionFailed)
	}
	if project.AllowedExploits == nil {
		return fmt.Errorf("%w: project has no allowed exploit set", ErrPreconditionFailed)
	}

	if !r.registry.BeginProcessing(project.ID) {
		return ErrAnalysisInProgress
	}

	outputDir := r.files.OutputDir(project.CreatedBy, project.ID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		r.registry.Set(project.ID, Job{Status: StatusFailed, Error: "could not create output directory"})
		return fmt.Errorf("create output dir: %w", err)
	}

	gen := r.generation.Load()
	go r.run(project, outputDir, gen)
	return nil
}

func (r *Runner) run(project *database.Project, outputDir string, gen int64) {
	args := append([]string{r.spec.Script}, analyzerArgs(project, outputDir)...)

	outputCh := make(chan OutputLine, 100)

	var result *processResult
	done := make(chan struct{})
	go func() {
		// Background context: the run outlives the request that
		// started it.
		result = runProcess(context.Background(), r.spec.Interpreter, args, outputCh)
		close(done)
	}()

	for line := range outputCh {
		slog.Debug("analyzer output", "project_id", project.ID, "stream", line.Stream, "line", line.Line)
		r.broadcaster.Broadcast(project.ID, line)
	}
	<-done

	r.broadcaster.Broadcast(project.ID, OutputLine{Done: true, Timestamp: time.Now()})

	// A job spawned by a dead server generation must not touch the
	// store; its output directory may already belong to a newer run.
	if gen != r.generation.Load() {
		slog.Warn("server generation changed during analysis, skipping store update", "project_id", project.ID)
		r.registry.Set(project.ID, Job{Status: StatusFailed, Error: "server restarted during analysis"})
		return
	}

	if result.Err != nil || result.ExitCode != 0 {
		detail := strings.TrimSpace(result.Stderr)
		if detail == "" && result.Err != nil {
			detail = result.Err.Error()
		}
		slog.Error("analysis failed", "project_id", project.ID, "exit_code", result.ExitCode, "error", result.Err)
		r.registry.Set(project.ID, Job{Status: StatusFailed, Error: detail})
		return
	}

	bundle, err := collectArtifacts(outputDir)
	if err != nil {
		slog.Error("analysis results incomplete", "project_id", project.ID, "error", err)
		r.registry.Set(project.ID, Job{Status: StatusFailed, Error: err.Error()})
		return
	}

	resultJSON, err := json.Marshal(bundle)
	if err != nil {
		r.registry.Set(project.ID, Job{Status: StatusFailed, Error: "failed to serialize analysis results"})
		return
	}

	completedAt := time.Now()
	if err := r.db.SetAnalysisResult(project.ID, string(resultJSON), completedAt, outputDir); err != nil {
		slog.Error("failed to persist analysis results", "project_id", project.ID, "error", err)
		r.registry.Set(project.ID, Job{Status: StatusFailed, Error: "failed to persist analysis results"})
		return
	}

	r.registry.Set(project.ID, Job{Status: StatusCompleted, Results: bundle, CompletedAt: &completedAt})
	slog.Info("analysis completed", "project_id", project.ID)
}

func analyzerArgs(project *database.Project, outputDir string) []string {
	return []string{
		project.NessusFilePath,
		"--output-dir", outputDir,
		"--allowed-ips", strings.Join(project.ScopeIPs, ","),
		"--allowed-exploits", exploits.CommandArg(project.AllowedExploits),
	}
}

func collectArtifacts(dir string) (*ResultBundle, error) {
	contents := make(map[string]string, len(artifactFiles))
	for _, name := range artifactFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrResultIncomplete, name)
		}
		contents[name] = string(data)
	}
	return &ResultBundle{
		DataWithExploits:   contents["data_with_exploits.csv"],
		RankedEntryPoints:  contents["ranked_entry_points.csv"],
		EntrypointMostInfo: contents["entrypoint_most_info.csv"],
		Port0Entries:       contents["port_0_entries.csv"],
		Exploits:           contents["exploits.json"],
	}, nil
}

// MergeCSV runs the external spreadsheet merge script on a serialized
// CSV bundle, synchronously. The workbook is written to outputFile.
func (r *Runner) MergeCSV(ctx context.Context, csvJSON, outputFile string) error {
	outputCh := make(chan OutputLine, 100)

	var result *processResult
	done := make(chan struct{})
	go func() {
		result = runProcess(ctx, r.spec.Interpreter, []string{r.spec.MergeScript, csvJSON, outputFile}, outputCh)
		close(done)
	}()

	for line := range outputCh {
		if line.Stream == "stderr" {
			slog.Warn("merge script output", "line", line.Line)
		}
	}
	<-done

	if result.Err != nil || result.ExitCode != 0 {
		return fmt.Errorf("merge script failed (exit %d): %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	if _, err := os.Stat(outputFile); err != nil {
		return fmt.Errorf("merge script produced no workbook: %w", err)
	}
	return nil
}
