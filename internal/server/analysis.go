package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/collinmckay/vulnsuite/internal/analysis"
	"github.com/collinmckay/vulnsuite/internal/database"
)

// handleStartAnalysis accepts the job and returns immediately; the
// response confirms only that the analysis was started, never that it
// finished. Outcome is observed through the status endpoint.
func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFrom(r)

	var req struct {
		ProjectID string `json:"projectId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "projectId is required")
		return
	}

	project, err := s.db.GetProject(user.UserID, req.ProjectID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Project not found or access denied")
			return
		}
		slog.Error("failed to load project", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to start analysis")
		return
	}

	if err := s.runner.Start(project); err != nil {
		switch {
		case errors.Is(err, analysis.ErrPreconditionFailed):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, analysis.ErrAnalysisInProgress):
			writeError(w, http.StatusConflict, err.Error())
		default:
			slog.Error("failed to start analysis", "project_id", project.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to start analysis")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Analysis started",
		"status":  string(analysis.StatusProcessing),
	})
}

// handleAnalysisStatus is a pure registry read; this is the only way a
// caller observes a job outcome.
func (s *Server) handleAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	projectID := strings.TrimPrefix(r.URL.Path, "/api/analysis-status/")
	job, ok := s.registry.Get(projectID)
	if !ok {
		writeError(w, http.StatusNotFound, "Analysis not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// handleCreateExcel hands the posted CSV bundle to the external merge
// script and streams the workbook back. Rendering happens entirely
// out-of-process.
func (s *Server) handleCreateExcel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		CSVData *analysis.ResultBundle `json:"csvData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CSVData == nil {
		writeError(w, http.StatusBadRequest, "CSV data is required")
		return
	}

	csvJSON, err := json.Marshal(req.CSVData)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid CSV data")
		return
	}

	tempDir, err := os.MkdirTemp("", "vulnsuite-excel-")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create Excel file")
		return
	}
	defer os.RemoveAll(tempDir)

	outputFile := filepath.Join(tempDir, fmt.Sprintf("excel_%d.xlsx", time.Now().UnixMilli()))
	if err := s.runner.MergeCSV(r.Context(), string(csvJSON), outputFile); err != nil {
		slog.Error("excel generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create Excel file")
		return
	}

	f, err := os.Open(outputFile)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Excel file was not created")
		return
	}
	defer f.Close()

	info, _ := f.Stat()
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="analysis.xlsx"`)
	http.ServeContent(w, r, "analysis.xlsx", info.ModTime(), f)
}
