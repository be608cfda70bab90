package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/leapstyle/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_TargetsFor(t *testing.T) {
	root := t.TempDir()
	core := filepath.Join(root, "core", "scss")
	page := filepath.Join(root, "assets", "scss")
	w := New([]Target{{Name: "unify-core-sass", Dir: core}, {Name: "page-sass", Dir: page}}, 0, nil)

	assert.Equal(t, []string{"page-sass"}, w.targetsFor(filepath.Join(page, "pages", "home.scss")))
	assert.Equal(t, []string{"unify-core-sass"}, w.targetsFor(filepath.Join(core, "main.scss")))
	assert.Empty(t, w.targetsFor(filepath.Join(root, "assets", "css", "main.css")))
	assert.Equal(t, DefaultDebounce, w.debounce)
}

func TestWatcher_RebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "scss")
	testutil.WriteFiles(t, src, map[string]string{"main.scss": "a {}"})

	var rebuilds atomic.Int32
	w := New([]Target{{
		Name: "page-sass",
		Dir:  src,
		Rebuild: func(context.Context) error {
			rebuilds.Add(1)
			return nil
		},
	}}, 20*time.Millisecond, testutil.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Keep touching the file until the watcher has picked up a change.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(src, "main.scss"), []byte("a { color: red; }"), 0o644)
		return rebuilds.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w := New([]Target{{Name: "page-sass", Dir: filepath.Join(t.TempDir(), "missing")}}, 0, nil)

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch")
}
