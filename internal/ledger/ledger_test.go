package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "ledger.db"), 32)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestInitialize_SeedRowIsNotPersisted(t *testing.T) {
	l := openTestLedger(t)
	cache := l.LoadCache()
	_, ok := cache[seedPath]
	assert.False(t, ok, "seed row must be deleted immediately after initialize")
}

func TestUpdate_DeleteThenInsertKeepsOneRowPerPath(t *testing.T) {
	l := openTestLedger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	require.NoError(t, l.Update(path, StatusIndexed, "", 3, 1))
	require.NoError(t, l.Update(path, StatusIndexed, "", 5, 1))

	cache := l.LoadCache()
	assert.Len(t, cache, 1)
	fs := cache[path]
	assert.Equal(t, uint32(5), fs.ChunkCount)
}

func TestUpdate_AllFieldsAlwaysPresent(t *testing.T) {
	l := openTestLedger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	require.NoError(t, l.Update(path, StatusFailed, "parse failed", 0, 0))

	fs, ok := l.Get(path)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, fs.Status)
	assert.Equal(t, "parse failed", fs.ErrorMessage)
	assert.NotEmpty(t, fs.LastModified)
	assert.NotEmpty(t, fs.FileHash)
	assert.NotEmpty(t, fs.LastRetry)
	assert.Empty(t, fs.IndexedAt)
}

func TestUpdate_IndexedStampsIndexedAtNotLastRetry(t *testing.T) {
	l := openTestLedger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	require.NoError(t, l.Update(path, StatusIndexed, "", 2, 1))

	fs, ok := l.Get(path)
	require.True(t, ok)
	assert.NotEmpty(t, fs.IndexedAt)
	assert.Empty(t, fs.LastRetry)
}

func TestUpdate_UnreadableFileLeavesMetadataEmpty(t *testing.T) {
	l := openTestLedger(t)
	require.NoError(t, l.Update("/nonexistent/ghost.txt", StatusFailed, "missing", 0, 0))

	fs, ok := l.Get("/nonexistent/ghost.txt")
	require.True(t, ok)
	assert.Empty(t, fs.LastModified)
	assert.Empty(t, fs.FileHash)
}

func TestUpdate_NilLedgerIsNoOp(t *testing.T) {
	var l *Ledger
	assert.NoError(t, l.Update("/whatever", StatusIndexed, "", 0, 1))
}

func TestLoadCache_ReturnsAllRows(t *testing.T) {
	l := openTestLedger(t)
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		p := filepath.Join(dir, "f"+string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, l.Update(p, StatusIndexed, "", 1, 1))
	}
	assert.Len(t, l.LoadCache(), 3)
}

func TestDelete_RemovesRowAndCacheEntry(t *testing.T) {
	l := openTestLedger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	require.NoError(t, l.Update(path, StatusIndexed, "", 1, 1))

	require.NoError(t, l.Delete(path))
	_, ok := l.Get(path)
	assert.False(t, ok)
}
