package storage_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinmckay/vulnsuite/internal/storage"
)

func testStore(t *testing.T) (*storage.Store, string, string) {
	t.Helper()
	base := t.TempDir()
	uploads := filepath.Join(base, "uploads")
	analysis := filepath.Join(base, "analysis")
	return storage.New(uploads, analysis, 1<<30), uploads, analysis
}

func TestSaveUploadRejectsWrongExtension(t *testing.T) {
	store, _, _ := testStore(t)

	_, err := store.SaveUpload("user-1", "scan.xml", strings.NewReader("data"))
	assert.ErrorIs(t, err, storage.ErrUnsupportedFileType)

	_, err = store.SaveUpload("user-1", "scan", strings.NewReader("data"))
	assert.ErrorIs(t, err, storage.ErrUnsupportedFileType)
}

func TestSaveUploadStoresFile(t *testing.T) {
	store, uploads, _ := testStore(t)

	path, err := store.SaveUpload("user-1", "scan.nessus", strings.NewReader("<NessusClientData/>"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(uploads, "user-1"), filepath.Dir(path))
	base := filepath.Base(path)
	assert.True(t, strings.HasPrefix(base, "nessus-"), "generated name %q", base)
	assert.Equal(t, ".nessus", filepath.Ext(base))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<NessusClientData/>", string(data))
}

func TestSaveUploadGeneratesDistinctNames(t *testing.T) {
	store, _, _ := testStore(t)

	a, err := store.SaveUpload("user-1", "scan.nessus", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := store.SaveUpload("user-1", "scan.nessus", strings.NewReader("b"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOutputDirIsDeterministic(t *testing.T) {
	store, _, analysis := testStore(t)
	dir := store.OutputDir("user-1", "proj-1")
	assert.Equal(t, filepath.Join(analysis, "user-1", "proj-1"), dir)
	assert.Equal(t, dir, store.OutputDir("user-1", "proj-1"))
}

func TestRemoveProjectFiles(t *testing.T) {
	store, uploads, _ := testStore(t)

	path, err := store.SaveUpload("user-1", "scan.nessus", strings.NewReader("data"))
	require.NoError(t, err)

	outDir := store.OutputDir("user-1", "proj-1")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "data_with_exploits.csv"), []byte("x"), 0o644))

	store.RemoveProjectFiles("user-1", "proj-1", path, outDir)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nessus file should be gone")
	_, err = os.Stat(outDir)
	assert.True(t, os.IsNotExist(err), "output dir should be gone")

	// Emptied per-user dirs are pruned.
	_, err = os.Stat(filepath.Join(uploads, "user-1"))
	assert.True(t, os.IsNotExist(err), "empty user upload dir should be pruned")
}

func TestRemoveProjectFilesToleratesMissingPaths(t *testing.T) {
	store, _, _ := testStore(t)
	// Nothing on disk; must not panic or error out.
	store.RemoveProjectFiles("user-1", "proj-1", "/nonexistent/scan.nessus", "/nonexistent/out")
}

func TestComputeUsage(t *testing.T) {
	store, _, _ := testStore(t)

	path, err := store.SaveUpload("user-1", "scan.nessus", strings.NewReader("12345"))
	require.NoError(t, err)

	outDir := store.OutputDir("user-1", "proj-1")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "a.csv"), []byte("1234567890"), 0o644))

	usage := store.ComputeUsage("user-1", []string{path, "", "/nonexistent.nessus"})
	assert.Equal(t, int64(5), usage.NessusSize)
	assert.Equal(t, int64(10), usage.AnalysisSize)
	assert.Equal(t, int64(15), usage.TotalSize)
	assert.Equal(t, int64(1<<30), usage.MaxSize)
	assert.Greater(t, usage.UsedPercentage, 0.0)
}
