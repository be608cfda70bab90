package state

import (
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapstyle/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_OpenCreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".leapstyle", "state.db")

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	assert.FileExists(t, path)
	assert.Equal(t, path, store.Path())

	version, err := store.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	require.NoError(t, store.Close())

	// Reopening an existing database is a no-op migration.
	again := NewSQLiteStore(nil)
	require.NoError(t, again.Open(path))
	require.NoError(t, again.Close())
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)

	_, err := store.CreateRun([]string{"default"})
	assert.Error(t, err)
	assert.Error(t, store.CompleteRun("x", RunStatusCompleted, ""))
	_, err = store.ListRuns(5)
	assert.Error(t, err)
	_, err = store.SchemaVersion()
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun([]string{"unify-core-sass", "page-sass"})
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)

	files := []FileRecord{
		{Task: "page-sass", Source: "public/assets/scss/main.scss", Output: "public/assets/css/main.css", Status: "compiled", Hash: "abc"},
		{Task: "page-sass", Source: "public/assets/scss/broken.scss", Output: "public/assets/css/broken.css", Status: "failed", Error: "expected }"},
		{Task: "unify-core-sass", Source: "core/scss/unify.scss", Output: "core/css/unify.css", Status: "unchanged", Hash: "def"},
	}
	require.NoError(t, store.RecordFiles(run.ID, files))
	require.NoError(t, store.CompleteRun(run.ID, RunStatusPartial, ""))

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"unify-core-sass", "page-sass"}, got.Tasks)
	assert.Equal(t, RunStatusPartial, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 1, got.Compiled)
	assert.Equal(t, 1, got.Unchanged)
	assert.Equal(t, 1, got.Failed)
	assert.Empty(t, got.Error)

	recorded, err := store.FilesForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, recorded, 3)
	assert.Equal(t, "public/assets/scss/broken.scss", recorded[0].Source)
	assert.Equal(t, "expected }", recorded[0].Error)
	assert.Equal(t, "unify-core-sass", recorded[2].Task)
	assert.Equal(t, "def", recorded[2].Hash)
}

func TestSQLiteStore_CompleteRunUnknown(t *testing.T) {
	store := setupTestStore(t)

	err := store.CompleteRun("missing", RunStatusFailed, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")

	_, err = store.GetRun("missing")
	assert.Error(t, err)
}

func TestSQLiteStore_ListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)

	var ids []string
	for _, task := range []string{"a", "b", "c"} {
		run, err := store.CreateRun([]string{task})
		require.NoError(t, err)
		require.NoError(t, store.CompleteRun(run.ID, RunStatusCompleted, ""))
		ids = append(ids, run.ID)
	}

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestSQLiteStore_RecordFilesEmpty(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.CreateRun(nil)
	require.NoError(t, err)

	require.NoError(t, store.RecordFiles(run.ID, nil))

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Tasks)
}
