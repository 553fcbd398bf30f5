// Package storage owns the on-disk lifecycle of uploaded scan files and
// analysis output directories.
package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnsupportedFileType rejects uploads that are not Nessus exports.
var ErrUnsupportedFileType = errors.New("only .nessus files are allowed")

const uploadExtension = ".nessus"

// sentinelFile keeps otherwise-empty directories tracked; it is never
// deleted.
const sentinelFile = ".gitkeep"

// Store lays out files per user: uploads under uploadsDir/<userKey>/
// and analysis output under analysisDir/<userKey>/<projectID>/. Paths
// are derived from generated identifiers, never from user-supplied
// names.
type Store struct {
	uploadsDir  string
	analysisDir string
	maxBytes    int64
}

func New(uploadsDir, analysisDir string, maxBytes int64) *Store {
	return &Store{uploadsDir: uploadsDir, analysisDir: analysisDir, maxBytes: maxBytes}
}

// SaveUpload stores an uploaded scan file under the user's upload
// directory with a collision-resistant generated name and returns the
// stored path.
func (s *Store) SaveUpload(userKey, originalName string, r io.Reader) (string, error) {
	if !strings.EqualFold(filepath.Ext(originalName), uploadExtension) {
		return "", ErrUnsupportedFileType
	}

	userDir := filepath.Join(s.uploadsDir, userKey)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := fmt.Sprintf("nessus-%d-%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], uploadExtension)
	path := filepath.Join(userDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return path, nil
}

// Remove deletes a stored upload. Used to back out a file when the
// owning project creation fails after the upload landed.
func (s *Store) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove upload", "path", path, "error", err)
	}
}

// OutputDir returns the deterministic analysis output path for a
// project.
func (s *Store) OutputDir(userKey, projectID string) string {
	return filepath.Join(s.analysisDir, userKey, projectID)
}

// RemoveProjectFiles erases everything a project owns on disk. All
// steps are best-effort: errors are logged and never abort the larger
// deletion flow.
func (s *Store) RemoveProjectFiles(userKey, projectID, nessusPath, outputDir string) {
	if nessusPath != "" {
		if err := os.Remove(nessusPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove nessus file", "path", nessusPath, "error", err)
		}
	}

	// The recorded output dir and the derived one are usually the same
	// path; remove both in case a project predates a layout change.
	for _, dir := range []string{outputDir, s.OutputDir(userKey, projectID)} {
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove analysis dir", "path", dir, "error", err)
		}
	}

	s.pruneEmptyDir(filepath.Join(s.analysisDir, userKey))
	s.pruneEmptyDir(filepath.Join(s.uploadsDir, userKey))
}

func (s *Store) pruneEmptyDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil {
		slog.Warn("failed to prune user dir", "path", dir, "error", err)
	}
}

// Usage is the byte accounting for one user's stored data.
type Usage struct {
	TotalSize      int64   `json:"totalSize"`
	NessusSize     int64   `json:"nessusSize"`
	AnalysisSize   int64   `json:"analysisSize"`
	MaxSize        int64   `json:"maxSize"`
	UsedPercentage float64 `json:"usedPercentage"`
}

// ComputeUsage sums the user's upload files (by recorded path) and
// their analysis output tree against the configured quota.
func (s *Store) ComputeUsage(userKey string, nessusPaths []string) Usage {
	var nessusSize int64
	for _, path := range nessusPaths {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil {
			nessusSize += info.Size()
		}
	}

	analysisSize := dirSize(filepath.Join(s.analysisDir, userKey))

	u := Usage{
		TotalSize:    nessusSize + analysisSize,
		NessusSize:   nessusSize,
		AnalysisSize: analysisSize,
		MaxSize:      s.maxBytes,
	}
	if u.MaxSize > 0 {
		u.UsedPercentage = float64(u.TotalSize) / float64(u.MaxSize) * 100
	}
	return u
}

func dirSize(dir string) int64 {
	var total int64
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	for _, entry := range entries {
		if entry.Name() == sentinelFile {
			continue
		}
		if entry.IsDir() {
			total += dirSize(filepath.Join(dir, entry.Name()))
			continue
		}
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}
