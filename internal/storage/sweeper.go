package storage

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/collinmckay/vulnsuite/internal/database"
)

// Sweep reconciles disk state with the project store, removing
// directories and uploads that no longer back an existing project.
// Per-entry failures are logged and do not abort the sweep.
func (s *Store) Sweep(refs []database.ProjectRef) {
	validUsers := make(map[string]bool)
	validProjects := make(map[string]bool)
	validUploads := make(map[string]bool)
	for _, ref := range refs {
		validUsers[ref.OwnerKey] = true
		validProjects[ref.ProjectID] = true
		if ref.NessusFilePath != "" {
			validUploads[filepath.Base(ref.NessusFilePath)] = true
		}
	}

	s.sweepAnalysisDirs(validUsers, validProjects)
	s.sweepUploads(validUsers, validUploads)
}

func (s *Store) sweepAnalysisDirs(validUsers, validProjects map[string]bool) {
	userDirs, err := os.ReadDir(s.analysisDir)
	if err != nil {
		return
	}
	for _, userDir := range userDirs {
		if userDir.Name() == sentinelFile {
			continue
		}
		userPath := filepath.Join(s.analysisDir, userDir.Name())

		if !validUsers[userDir.Name()] {
			if err := os.RemoveAll(userPath); err != nil {
				slog.Warn("failed to remove orphaned user dir", "path", userPath, "error", err)
			} else {
				slog.Info("removed orphaned user dir", "path", userPath)
			}
			continue
		}

		projectDirs, err := os.ReadDir(userPath)
		if err != nil {
			slog.Warn("failed to read user dir", "path", userPath, "error", err)
			continue
		}
		for _, projectDir := range projectDirs {
			if projectDir.Name() == sentinelFile || validProjects[projectDir.Name()] {
				continue
			}
			projectPath := filepath.Join(userPath, projectDir.Name())
			if err := os.RemoveAll(projectPath); err != nil {
				slog.Warn("failed to remove orphaned project dir", "path", projectPath, "error", err)
			} else {
				slog.Info("removed orphaned project dir", "path", projectPath)
			}
		}
	}
}

func (s *Store) sweepUploads(validUsers, validUploads map[string]bool) {
	userDirs, err := os.ReadDir(s.uploadsDir)
	if err != nil {
		return
	}
	for _, userDir := range userDirs {
		if userDir.Name() == sentinelFile {
			continue
		}
		userPath := filepath.Join(s.uploadsDir, userDir.Name())

		if !userDir.IsDir() || !validUsers[userDir.Name()] {
			if err := os.RemoveAll(userPath); err != nil {
				slog.Warn("failed to remove orphaned upload entry", "path", userPath, "error", err)
			} else {
				slog.Info("removed orphaned upload entry", "path", userPath)
			}
			continue
		}

		files, err := os.ReadDir(userPath)
		if err != nil {
			slog.Warn("failed to read upload dir", "path", userPath, "error", err)
			continue
		}
		for _, file := range files {
			if file.Name() == sentinelFile || validUploads[file.Name()] {
				continue
			}
			filePath := filepath.Join(userPath, file.Name())
			if err := os.RemoveAll(filePath); err != nil {
				slog.Warn("failed to remove orphaned upload", "path", filePath, "error", err)
			} else {
				slog.Info("removed orphaned upload", "path", filePath)
			}
		}
	}
}
