package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/collinmckay/vulnsuite/internal/database"
	"github.com/collinmckay/vulnsuite/internal/storage"
)

const maxUploadBytes = 50 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ipEntry is the wire shape the frontend uses for scope lists.
type ipEntry struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type projectPayload struct {
	ScopeIPs        []ipEntry `json:"scopeIPs"`
	OffLimitIPs     []ipEntry `json:"offLimitIPs"`
	AllowedExploits []string  `json:"allowedExploits"`
	CreatedAt       string    `json:"createdAt"`
}

type projectResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	NessusFileName  string    `json:"nessusFileName"`
	NessusFilePath  string    `json:"nessusFilePath"`
	ScopeIPs        []ipEntry `json:"scopeIPs"`
	OffLimitIPs     []ipEntry `json:"offLimitIPs"`
	AllowedExploits []string  `json:"allowedExploits"`
	AnalysisStatus  string    `json:"analysisStatus,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toProjectResponse(p database.Project) projectResponse {
	return projectResponse{
		ID:              p.ID,
		Name:            p.Name,
		NessusFileName:  p.NessusFileName,
		NessusFilePath:  p.NessusFilePath,
		ScopeIPs:        toIPEntries(p.ScopeIPs),
		OffLimitIPs:     toIPEntries(p.OffLimitIPs),
		AllowedExploits: p.AllowedExploits,
		AnalysisStatus:  p.AnalysisStatus,
		CreatedAt:       p.CreatedAt,
	}
}

func toIPEntries(values []string) []ipEntry {
	entries := make([]ipEntry, len(values))
	for i, v := range values {
		entries[i] = ipEntry{ID: uuid.NewString(), Value: v}
	}
	return entries
}

// handleCreateProject accepts a multipart form: name, projectData JSON
// and an optional nessusFile. The upload lands on disk first (mirroring
// the storage middleware it replaces), so every failure path after it
// must remove the stored file.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFrom(r)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form data")
		return
	}

	var storedPath, originalName string
	file, header, err := r.FormFile("nessusFile")
	switch {
	case err == nil:
		defer file.Close()
		storedPath, err = s.files.SaveUpload(user.UserID, header.Filename, file)
		if err != nil {
			if errors.Is(err, storage.ErrUnsupportedFileType) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			slog.Error("failed to store upload", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to store uploaded file")
			return
		}
		originalName = header.Filename
	case errors.Is(err, http.ErrMissingFile):
		// project without an attached scan file
	default:
		writeError(w, http.StatusBadRequest, "invalid file upload")
		return
	}

	// No orphan on partial failure: back the upload out whenever the
	// creation does not commit.
	fail := func(status int, msg string) {
		s.files.Remove(storedPath)
		writeError(w, status, msg)
	}

	name := r.FormValue("name")
	if name == "" {
		fail(http.StatusBadRequest, "Project name is required")
		return
	}

	var payload projectPayload
	if err := json.Unmarshal([]byte(r.FormValue("projectData")), &payload); err != nil {
		fail(http.StatusBadRequest, "invalid project data")
		return
	}

	scopeIPs, err := validateAddresses(payload.ScopeIPs)
	if err != nil {
		fail(http.StatusBadRequest, "invalid scope IP: "+err.Error())
		return
	}
	offLimitIPs, err := validateAddresses(payload.OffLimitIPs)
	if err != nil {
		fail(http.StatusBadRequest, "invalid off-limit IP: "+err.Error())
		return
	}

	createdAt, err := time.Parse(time.RFC3339, payload.CreatedAt)
	if err != nil {
		createdAt = time.Now()
	}

	project := &database.Project{
		Name:            name,
		CreatedBy:       user.UserID,
		NessusFileName:  originalName,
		NessusFilePath:  storedPath,
		ScopeIPs:        scopeIPs,
		OffLimitIPs:     offLimitIPs,
		AllowedExploits: payload.AllowedExploits,
		CreatedAt:       createdAt,
	}

	if err := s.db.CreateProject(project); err != nil {
		switch {
		case errors.Is(err, database.ErrInvalidName):
			fail(http.StatusBadRequest, "Project name cannot contain spaces")
		case errors.Is(err, database.ErrDuplicateName):
			fail(http.StatusBadRequest, "Project name already exists")
		default:
			slog.Error("failed to create project", "error", err)
			fail(http.StatusInternalServerError, "Failed to create project")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Project created successfully",
		"project": toProjectResponse(*project),
	})
}

func (s *Server) handleFetchProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFrom(r)

	projects, err := s.db.ListProjects(user.UserID)
	if err != nil {
		slog.Error("failed to fetch projects", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch projects")
		return
	}

	responses := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		responses = append(responses, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": responses})
}

type analyzedProjectResponse struct {
	ProjectID           string     `json:"projectId"`
	Name                string     `json:"name"`
	CreatedAt           time.Time  `json:"createdAt"`
	AnalysisCompletedAt *time.Time `json:"analysisCompletedAt"`
	ScopeIPs            []ipEntry  `json:"scopeIPs"`
	OffLimitIPs         []ipEntry  `json:"offLimitIPs"`
	AllowedExploits     []string   `json:"allowedExploits"`
	NessusFileName      string     `json:"nessusFileName"`
	DataWithExploits    string     `json:"data_with_exploits"`
	RankedEntryPoints   string     `json:"ranked_entry_points"`
	EntrypointMostInfo  string     `json:"entrypoint_most_info"`
	Port0Entries        string     `json:"port_0_entries"`
	Exploits            string     `json:"exploits"`
}

func (s *Server) handleFetchAnalyzedProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFrom(r)

	projects, err := s.db.ListAnalyzedProjects(user.UserID)
	if err != nil {
		slog.Error("failed to fetch analyzed projects", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch analyzed projects")
		return
	}

	responses := make([]analyzedProjectResponse, 0, len(projects))
	for _, p := range projects {
		resp := analyzedProjectResponse{
			ProjectID:           p.ID,
			Name:                p.Name,
			CreatedAt:           p.CreatedAt,
			AnalysisCompletedAt: p.LastAnalysis,
			ScopeIPs:            toIPEntries(p.ScopeIPs),
			OffLimitIPs:         toIPEntries(p.OffLimitIPs),
			AllowedExploits:     p.AllowedExploits,
			NessusFileName:      p.NessusFileName,
		}

		var bundle struct {
			DataWithExploits   string `json:"data_with_exploits"`
			RankedEntryPoints  string `json:"ranked_entry_points"`
			EntrypointMostInfo string `json:"entrypoint_most_info"`
			Port0Entries       string `json:"port_0_entries"`
			Exploits           string `json:"exploits"`
		}
		if err := json.Unmarshal([]byte(p.AnalysisResult), &bundle); err != nil {
			slog.Warn("failed to parse stored analysis result", "project_id", p.ID, "error", err)
		} else {
			resp.DataWithExploits = bundle.DataWithExploits
			resp.RankedEntryPoints = bundle.RankedEntryPoints
			resp.EntrypointMostInfo = bundle.EntrypointMostInfo
			resp.Port0Entries = bundle.Port0Entries
			resp.Exploits = bundle.Exploits
		}

		responses = append(responses, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"projects":       responses,
		"successMessage": "Found analyzed projects",
	})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFrom(r)

	projectID := strings.TrimPrefix(r.URL.Path, "/api/delete-project/")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "Project ID is required")
		return
	}

	project, err := s.db.GetProject(user.UserID, projectID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Project not found or access denied")
			return
		}
		slog.Error("failed to load project", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete project")
		return
	}

	if err := s.db.DeleteProject(user.UserID, projectID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Project not found or access denied")
			return
		}
		slog.Error("failed to delete project", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete project")
		return
	}

	// Best-effort: the record is gone regardless of how cleanup fares.
	s.files.RemoveProjectFiles(user.UserID, projectID, project.NessusFilePath, project.AnalysisOutputDir)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Project and associated files deleted successfully",
	})
}

func (s *Server) handleDownloadNessus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFrom(r)

	projectID := strings.TrimPrefix(r.URL.Path, "/api/download-nessus/")
	project, err := s.db.GetProject(user.UserID, projectID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Project not found or access denied")
		return
	}

	if project.NessusFilePath == "" || project.NessusFileName == "" {
		writeError(w, http.StatusNotFound, "No Nessus file found for this project")
		return
	}

	f, err := os.Open(project.NessusFilePath)
	if err != nil {
		// Recorded path with no file behind it: a stale reference.
		writeError(w, http.StatusNotFound, "Nessus file missing from storage")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to stream file")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+project.NessusFileName+`"`)
	http.ServeContent(w, r, project.NessusFileName, info.ModTime(), f)
}
