package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string, opts Options) *HybridWatcher {
	t.Helper()
	opts.DebounceWindow = 10 * time.Millisecond
	w, err := NewHybridWatcher(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})

	started := make(chan error, 1)
	go func() { started <- w.Start(ctx, root) }()

	// Give fsnotify/polling a moment to register the root before firing
	// events; flaky otherwise on slower filesystems.
	time.Sleep(50 * time.Millisecond)
	return w
}

func collectBatch(t *testing.T, w *HybridWatcher) []FileEvent {
	t.Helper()
	select {
	case batch := <-w.Events():
		return batch
	case err := <-w.Errors():
		t.Fatalf("watcher error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for file event batch")
	}
	return nil
}

func TestHybridWatcher_EmitsCreateEvent(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, Options{})

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("hi"), 0o644))

	batch := collectBatch(t, w)
	require.NotEmpty(t, batch)
	assert.Equal(t, "new.txt", batch[0].Path)
}

func TestHybridWatcher_IgnoresOwnDataDir(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, Options{DataDir: ".indexer-core"})

	dataDir := filepath.Join(root, ".indexer-core")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "ledger.db"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "visible.txt"), []byte("x"), 0o644))

	batch := collectBatch(t, w)
	for _, e := range batch {
		assert.NotContains(t, e.Path, ".indexer-core")
	}
}

func TestHybridWatcher_IgnoresConfiguredExcludePatterns(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, Options{IgnorePatterns: []string{"*.tmp"}})

	require.NoError(t, os.WriteFile(filepath.Join(root, "scratch.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("x"), 0o644))

	batch := collectBatch(t, w)
	for _, e := range batch {
		assert.NotEqual(t, "scratch.tmp", e.Path)
	}
}

func TestHybridWatcher_ReloadIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, Options{})

	w.ReloadIgnorePatterns([]string{"*.log"})

	require.NoError(t, os.WriteFile(filepath.Join(root, "run.log"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "run.txt"), []byte("x"), 0o644))

	batch := collectBatch(t, w)
	for _, e := range batch {
		assert.NotEqual(t, "run.log", e.Path)
	}
}

func TestHybridWatcher_StopClosesChannels(t *testing.T) {
	root := t.TempDir()
	w, err := NewHybridWatcher(Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx, root) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop()) // idempotent

	_, ok := <-w.Events()
	assert.False(t, ok)
}

func TestHybridWatcher_WatcherTypeReportsFsnotifyOrPolling(t *testing.T) {
	w, err := NewHybridWatcher(Options{})
	require.NoError(t, err)
	assert.Contains(t, []string{"fsnotify", "polling"}, w.WatcherType())
}
