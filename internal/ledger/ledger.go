// Package ledger persists the per-path indexing state ("FileStatus" rows)
// that drive incremental reindexing. Backed by a pure-Go SQLite database so
// the parent process stays cgo-free even though it also forks a subsidiary
// embedder process.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/localsearch/indexer-core/internal/fsutil"
)

// Status is one of the FileStatus lifecycle states.
type Status string

const (
	StatusInit     Status = "init"
	StatusIndexed  Status = "indexed"
	StatusFailed   Status = "failed"
	StatusError    Status = "error"
	StatusOutdated Status = "outdated"
)

// FileStatus is a single ledger row. Every field is always present: unknown
// values are the empty string or zero, never absent, so the row is never
// partially populated.
type FileStatus struct {
	Path          string
	Status        Status
	ParserVersion int
	ChunkCount    uint32
	ErrorMessage  string
	LastModified  string // ISO8601, empty when unknown
	IndexedAt     string // ISO8601, empty until first success
	FileHash      string // empty until computed
	LastRetry     string // ISO8601, empty unless retried
}

const seedPath = "__init__"

const schema = `
CREATE TABLE IF NOT EXISTS file_status (
	path           TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	parser_version INTEGER NOT NULL DEFAULT 0,
	chunk_count    INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT NOT NULL DEFAULT '',
	last_modified  TEXT NOT NULL DEFAULT '',
	indexed_at     TEXT NOT NULL DEFAULT '',
	file_hash      TEXT NOT NULL DEFAULT '',
	last_retry     TEXT NOT NULL DEFAULT ''
);
`

// Ledger is the file-status table plus an in-process read cache.
type Ledger struct {
	db    *sql.DB
	cache *lru.Cache[string, FileStatus]
}

// Open opens (creating if needed) the ledger database at path and ensures
// its schema. cacheSize bounds the read-hot LRU layered in front of the
// table; 0 disables caching.
func Open(path string, cacheSize int) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	l := &Ledger{db: db}
	if cacheSize > 0 {
		c, err := lru.New[string, FileStatus](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("ledger: lru cache: %w", err)
		}
		l.cache = c
	}
	if err := l.Initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Initialize ensures the file_status table exists with the current schema.
// If the table exists but a sanity read fails (schema drift from an older
// version of this binary), the table is dropped and recreated.
func (l *Ledger) Initialize() error {
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("ledger: create schema: %w", err)
	}

	if _, err := l.db.Exec(`SELECT path, status, parser_version, chunk_count, error_message, last_modified, indexed_at, file_hash, last_retry FROM file_status LIMIT 1`); err != nil {
		if _, dropErr := l.db.Exec(`DROP TABLE IF EXISTS file_status`); dropErr != nil {
			return fmt.Errorf("ledger: drop drifted schema: %w", dropErr)
		}
		if _, err := l.db.Exec(schema); err != nil {
			return fmt.Errorf("ledger: recreate schema: %w", err)
		}
	}

	// Seed row, per contract, then delete it immediately.
	if _, err := l.db.Exec(
		`INSERT OR REPLACE INTO file_status (path, status, parser_version, chunk_count, error_message, last_modified, indexed_at, file_hash, last_retry)
		 VALUES (?, ?, 0, 0, '', '', '', '', '')`,
		seedPath, StatusInit,
	); err == nil {
		_, _ = l.db.Exec(`DELETE FROM file_status WHERE path = ?`, seedPath)
	}

	return nil
}

// LoadCache reads every row into an in-memory map. Any read error yields an
// empty map rather than an error: the ledger never blocks startup.
func (l *Ledger) LoadCache() map[string]FileStatus {
	out := map[string]FileStatus{}

	rows, err := l.db.Query(`SELECT path, status, parser_version, chunk_count, error_message, last_modified, indexed_at, file_hash, last_retry FROM file_status`)
	if err != nil {
		return out
	}
	defer rows.Close()

	for rows.Next() {
		var fs FileStatus
		var status string
		if err := rows.Scan(&fs.Path, &status, &fs.ParserVersion, &fs.ChunkCount, &fs.ErrorMessage, &fs.LastModified, &fs.IndexedAt, &fs.FileHash, &fs.LastRetry); err != nil {
			return map[string]FileStatus{}
		}
		fs.Status = Status(status)
		out[fs.Path] = fs
	}
	if rows.Err() != nil {
		return map[string]FileStatus{}
	}
	return out
}

// Update writes a complete FileStatus row for path via delete-then-insert,
// refreshing last_modified and file_hash from stat(path) (empty strings if
// unreadable). indexed_at is stamped for a status of StatusIndexed;
// last_retry is stamped iff status is failed or error.
func (l *Ledger) Update(path string, status Status, errorMessage string, chunkCount uint32, parserVersion int) error {
	if l == nil || l.db == nil {
		return nil // no-op on a nil/absent table, per contract
	}

	now := time.Now().UTC().Format(time.RFC3339)

	var lastModified, fileHash string
	if info, err := os.Stat(path); err == nil {
		lastModified = info.ModTime().UTC().Format(time.RFC3339)
		if h, err := fsutil.FileHash(path); err == nil {
			fileHash = h
		}
	}

	var indexedAt string
	if status == StatusIndexed {
		indexedAt = now
	}

	var lastRetry string
	if status == StatusFailed || status == StatusError {
		lastRetry = now
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM file_status WHERE path = ?`, path); err != nil {
		return fmt.Errorf("ledger: delete %s: %w", path, err)
	}
	if _, err := tx.Exec(
		`INSERT INTO file_status (path, status, parser_version, chunk_count, error_message, last_modified, indexed_at, file_hash, last_retry)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		path, string(status), parserVersion, chunkCount, errorMessage, lastModified, indexedAt, fileHash, lastRetry,
	); err != nil {
		return fmt.Errorf("ledger: insert %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit %s: %w", path, err)
	}

	if l.cache != nil {
		l.cache.Add(path, FileStatus{
			Path: path, Status: status, ParserVersion: parserVersion, ChunkCount: chunkCount,
			ErrorMessage: errorMessage, LastModified: lastModified, IndexedAt: indexedAt,
			FileHash: fileHash, LastRetry: lastRetry,
		})
	}
	return nil
}

// Get returns the cached or stored row for path.
func (l *Ledger) Get(path string) (FileStatus, bool) {
	if l.cache != nil {
		if fs, ok := l.cache.Get(path); ok {
			return fs, true
		}
	}
	row := l.db.QueryRow(`SELECT path, status, parser_version, chunk_count, error_message, last_modified, indexed_at, file_hash, last_retry FROM file_status WHERE path = ?`, path)
	var fs FileStatus
	var status string
	if err := row.Scan(&fs.Path, &status, &fs.ParserVersion, &fs.ChunkCount, &fs.ErrorMessage, &fs.LastModified, &fs.IndexedAt, &fs.FileHash, &fs.LastRetry); err != nil {
		return FileStatus{}, false
	}
	fs.Status = Status(status)
	return fs, true
}

// Delete removes path's row, if any.
func (l *Ledger) Delete(path string) error {
	if _, err := l.db.Exec(`DELETE FROM file_status WHERE path = ?`, path); err != nil {
		return fmt.Errorf("ledger: delete %s: %w", path, err)
	}
	if l.cache != nil {
		l.cache.Remove(path)
	}
	return nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}
