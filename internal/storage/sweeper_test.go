package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinmckay/vulnsuite/internal/database"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestSweepRemovesOrphans(t *testing.T) {
	store, uploads, analysis := testStore(t)

	// Live project: user-1 owns proj-1 with an upload on record.
	liveUpload := filepath.Join(uploads, "user-1", "nessus-1-aaaa.nessus")
	writeFile(t, liveUpload)
	writeFile(t, filepath.Join(analysis, "user-1", "proj-1", "data_with_exploits.csv"))

	// Orphans: a stale upload for user-1, a dead project dir and a dir
	// for a user the store no longer knows.
	staleUpload := filepath.Join(uploads, "user-1", "nessus-2-bbbb.nessus")
	writeFile(t, staleUpload)
	writeFile(t, filepath.Join(analysis, "user-1", "proj-dead", "a.csv"))
	writeFile(t, filepath.Join(analysis, "user-gone", "proj-x", "a.csv"))
	writeFile(t, filepath.Join(uploads, "user-gone", "nessus-3-cccc.nessus"))

	store.Sweep([]database.ProjectRef{
		{OwnerKey: "user-1", ProjectID: "proj-1", NessusFilePath: liveUpload},
	})

	_, err := os.Stat(liveUpload)
	assert.NoError(t, err, "live upload must survive")
	_, err = os.Stat(filepath.Join(analysis, "user-1", "proj-1"))
	assert.NoError(t, err, "live project dir must survive")

	for _, gone := range []string{
		staleUpload,
		filepath.Join(analysis, "user-1", "proj-dead"),
		filepath.Join(analysis, "user-gone"),
		filepath.Join(uploads, "user-gone"),
	} {
		_, err := os.Stat(gone)
		assert.True(t, os.IsNotExist(err), "%s should have been swept", gone)
	}
}

func TestSweepPreservesSentinels(t *testing.T) {
	store, uploads, analysis := testStore(t)

	writeFile(t, filepath.Join(uploads, ".gitkeep"))
	writeFile(t, filepath.Join(analysis, ".gitkeep"))
	writeFile(t, filepath.Join(uploads, "user-1", ".gitkeep"))
	writeFile(t, filepath.Join(analysis, "user-1", ".gitkeep"))

	store.Sweep([]database.ProjectRef{
		{OwnerKey: "user-1", ProjectID: "proj-1"},
	})

	for _, kept := range []string{
		filepath.Join(uploads, ".gitkeep"),
		filepath.Join(analysis, ".gitkeep"),
		filepath.Join(uploads, "user-1", ".gitkeep"),
		filepath.Join(analysis, "user-1", ".gitkeep"),
	} {
		_, err := os.Stat(kept)
		assert.NoError(t, err, "%s must never be swept", kept)
	}
}

func TestSweepEmptyStoreRemovesEverything(t *testing.T) {
	store, uploads, analysis := testStore(t)

	writeFile(t, filepath.Join(uploads, "user-1", "nessus-1-aaaa.nessus"))
	writeFile(t, filepath.Join(analysis, "user-1", "proj-1", "a.csv"))

	store.Sweep(nil)

	_, err := os.Stat(filepath.Join(uploads, "user-1"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(analysis, "user-1"))
	assert.True(t, os.IsNotExist(err))
}
