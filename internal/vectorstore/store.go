// Package vectorstore implements the VectorStore contract (chunk rows plus
// nearest-neighbour vector search) backed by an in-process HNSW graph
// (github.com/coder/hnsw) for the vectors and a pure-Go modernc.org/sqlite
// database for the row data, so the parent process stays cgo-free even
// though it already forks a subsidiary OS process for the embedder.
package vectorstore

import (
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	_ "modernc.org/sqlite"
)

// Row is one persisted chunk: its text, source location, and embedding
// vector. Vector is nil for rows that haven't been embedded yet.
type Row struct {
	ID     string
	Text   string
	Path   string
	Page   int
	Offset int
	Hash   string
	Vector []float32
}

// Result is a Row returned from VectorSearch, carrying its distance to the
// query vector. Distance is non-negative and ascending within a result set.
type Result struct {
	Row
	Distance float32
}

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store owns the underlying sqlite database shared by every table created
// from it, mirroring internal/ledger's single-database-many-tables shape.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	tables map[string]*Table
}

// Open opens (creating if needed) the vector store database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open %s: %w", path, err)
	}
	return &Store{db: db, tables: map[string]*Table{}}, nil
}

// CreateTable creates (or reopens) a table named name. sampleRows is used
// only to infer the vector dimension when the table is new and at least one
// sample row carries a non-empty vector; it is not itself inserted.
func (s *Store) CreateTable(name string, sampleRows []Row) (*Table, error) {
	if !tableNameRE.MatchString(name) {
		return nil, fmt.Errorf("vectorstore: invalid table name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[name]; ok {
		return t, nil
	}

	dims := 0
	for _, r := range sampleRows {
		if len(r.Vector) > 0 {
			dims = len(r.Vector)
			break
		}
	}

	t, err := newTable(s.db, name, dims)
	if err != nil {
		return nil, err
	}
	s.tables[name] = t
	return t, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
