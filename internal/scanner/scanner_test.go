package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanner_AllFiles_ReturnsSupportedExtensionsOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.txt", "hello")
	writeFile(t, root, "image.png", "binary")
	writeFile(t, root, "notes.md", "# notes")

	s, err := New()
	require.NoError(t, err)

	paths, err := s.AllFiles(context.Background(), Options{
		RootDir:             root,
		SupportedExtensions: []string{"txt", "md"},
	})
	require.NoError(t, err)
	sort.Strings(paths)
	assert.Equal(t, []string{"doc.txt", "notes.md"}, paths)
}

func TestScanner_AllFiles_HonorsExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "hi")
	writeFile(t, root, "node_modules/pkg/index.txt", "hi")

	s, err := New()
	require.NoError(t, err)

	paths, err := s.AllFiles(context.Background(), Options{
		RootDir:         root,
		ExcludePatterns: []string{"node_modules/"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt"}, paths)
}

func TestScanner_AllFiles_SkipsOwnDataDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.txt", "hi")
	writeFile(t, root, ".indexer-core/file_status/ledger.db", "binary")

	s, err := New()
	require.NoError(t, err)

	paths, err := s.AllFiles(context.Background(), Options{
		RootDir: root,
		DataDir: ".indexer-core",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.txt"}, paths)
}

func TestScanner_AllFiles_SkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.txt", "hi")
	writeFile(t, root, "big.txt", string(make([]byte, 1024)))

	s, err := New()
	require.NoError(t, err)

	paths, err := s.AllFiles(context.Background(), Options{RootDir: root, MaxFileSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"small.txt"}, paths)
}

func TestScanner_Scan_ContextCancellationStopsWalk(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("d", string(rune('a'+i%26))+".txt"), "x")
	}

	s, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := s.Scan(ctx, Options{RootDir: root})
	require.NoError(t, err)
	for range results {
		// drain; cancellation should end the walk quickly without hanging
	}
}
