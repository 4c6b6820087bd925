package vectorstore

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coder/hnsw"
)

const rowCacheSize = 1024

// Table is a named set of chunk rows plus an HNSW index over their vectors.
// All methods are safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	db    *sql.DB
	name  string
	dims  int
	graph *hnsw.Graph[uint64]
	cache *lru.Cache[string, Row]

	idMap   map[string]uint64 // row ID -> hnsw key
	keyMap  map[uint64]string // hnsw key -> row ID
	nextKey uint64
}

func newTable(db *sql.DB, name string, dims int) (*Table, error) {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id     TEXT PRIMARY KEY,
	text   TEXT NOT NULL DEFAULT '',
	path   TEXT NOT NULL DEFAULT '',
	page   INTEGER NOT NULL DEFAULT 0,
	offset INTEGER NOT NULL DEFAULT 0,
	hash   TEXT NOT NULL DEFAULT ''
);`, name)
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("vectorstore: create table %s: %w", name, err)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	cache, err := lru.New[string, Row](rowCacheSize)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: lru cache: %w", err)
	}

	// The HNSW graph lives only in memory and is not persisted: after a
	// process restart it holds only rows Add-ed since then, while the sqlite
	// rows persist.
	t := &Table{
		db:     db,
		name:   name,
		dims:   dims,
		graph:  graph,
		cache:  cache,
		idMap:  map[string]uint64{},
		keyMap: map[uint64]string{},
	}
	return t, nil
}

// Add inserts or updates rows. A row with a non-empty Vector is also
// upserted into the HNSW graph; a row with an empty Vector only touches the
// sqlite table (e.g. a placeholder row written before embedding completes).
func (t *Table) Add(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("vectorstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert := fmt.Sprintf(`INSERT INTO %s (id, text, path, page, offset, hash) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text=excluded.text, path=excluded.path, page=excluded.page, offset=excluded.offset, hash=excluded.hash`, t.name)

	for _, r := range rows {
		if _, err := tx.Exec(upsert, r.ID, r.Text, r.Path, r.Page, r.Offset, r.Hash); err != nil {
			return fmt.Errorf("vectorstore: upsert %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vectorstore: commit: %w", err)
	}

	for _, r := range rows {
		t.cache.Add(r.ID, r)
		if len(r.Vector) == 0 {
			continue
		}
		if t.dims == 0 {
			t.dims = len(r.Vector)
		}
		if len(r.Vector) != t.dims {
			return fmt.Errorf("vectorstore: row %s: dimension mismatch: expected %d, got %d", r.ID, t.dims, len(r.Vector))
		}

		// Lazy deletion on re-add: orphan the old graph node rather than
		// removing it, matching coder/hnsw's guidance against deleting the
		// last node in the graph.
		if existingKey, exists := t.idMap[r.ID]; exists {
			delete(t.keyMap, existingKey)
			delete(t.idMap, r.ID)
		}

		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		normalizeInPlace(vec)

		key := t.nextKey
		t.nextKey++
		t.graph.Add(hnsw.MakeNode(key, vec))
		t.idMap[r.ID] = key
		t.keyMap[key] = r.ID
	}
	return nil
}

// Delete removes every row matching the SQL-like predicate (spliced
// directly into a WHERE clause; callers are internal query code, not raw
// external input).
func (t *Table) Delete(predicate string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids, err := t.selectIDsLocked(predicate)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf(`DELETE FROM %s`, t.name)
	if predicate != "" {
		stmt += " WHERE " + predicate
	}
	if _, err := t.db.Exec(stmt); err != nil {
		return fmt.Errorf("vectorstore: delete from %s: %w", t.name, err)
	}

	for _, id := range ids {
		t.cache.Remove(id)
		if key, exists := t.idMap[id]; exists {
			delete(t.keyMap, key)
			delete(t.idMap, id)
		}
	}
	return nil
}

func (t *Table) selectIDsLocked(predicate string) ([]string, error) {
	stmt := fmt.Sprintf(`SELECT id FROM %s`, t.name)
	if predicate != "" {
		stmt += " WHERE " + predicate
	}
	rows, err := t.db.Query(stmt)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: select ids from %s: %w", t.name, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("vectorstore: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountRows returns the number of rows currently in the table.
func (t *Table) CountRows() (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var n int
	row := t.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t.name))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("vectorstore: count %s: %w", t.name, err)
	}
	return n, nil
}

var allColumns = []string{"id", "text", "path", "page", "offset", "hash"}

// Query starts a fluent row query: Query().Where(pred).Select(cols).Limit(n).ToArray().
func (t *Table) Query() *QueryBuilder {
	return &QueryBuilder{table: t, columns: allColumns}
}

// QueryBuilder builds a plain (non-vector) row query.
type QueryBuilder struct {
	table     *Table
	predicate string
	columns   []string
	limit     int
}

// Where restricts results to rows matching the SQL-like predicate.
func (q *QueryBuilder) Where(predicate string) *QueryBuilder {
	q.predicate = predicate
	return q
}

// Select restricts which columns are populated on the returned rows. An
// empty or nil argument selects every column.
func (q *QueryBuilder) Select(columns []string) *QueryBuilder {
	if len(columns) > 0 {
		q.columns = columns
	}
	return q
}

// Limit caps the number of rows returned. 0 (the default) means unbounded.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// ToArray executes the query and returns the matching rows. Only the
// columns named in Select are populated; the rest are left zero-valued.
func (q *QueryBuilder) ToArray() ([]Row, error) {
	t := q.table
	t.mu.RLock()
	defer t.mu.RUnlock()

	cols := normalizeColumns(q.columns)
	stmt := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(cols, ", "), t.name)
	if q.predicate != "" {
		stmt += " WHERE " + q.predicate
	}
	if q.limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", q.limit)
	}

	sqlRows, err := t.db.Query(stmt)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query %s: %w", t.name, err)
	}
	defer sqlRows.Close()

	var out []Row
	for sqlRows.Next() {
		r, err := scanRow(sqlRows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, sqlRows.Err()
}

// VectorSearch starts a fluent nearest-neighbour query:
// VectorSearch(vec).Where(pred).Limit(n).ToArray().
func (t *Table) VectorSearch(vector []float32) *VectorQueryBuilder {
	return &VectorQueryBuilder{table: t, vector: vector, limit: 10}
}

// VectorQueryBuilder builds a nearest-neighbour search over the table.
type VectorQueryBuilder struct {
	table     *Table
	vector    []float32
	predicate string
	limit     int
}

// Where restricts candidate results to rows whose id matches a prior
// Query().Where(pred) row-ID filter; it is applied after the HNSW search by
// intersecting with a predicate-filtered ID set.
func (q *VectorQueryBuilder) Where(predicate string) *VectorQueryBuilder {
	q.predicate = predicate
	return q
}

// Limit caps the number of nearest neighbours returned. Default 10.
func (q *VectorQueryBuilder) Limit(n int) *VectorQueryBuilder {
	q.limit = n
	return q
}

// ToArray runs the search and returns results ordered ascending by
// Distance (f32, >= 0).
func (q *VectorQueryBuilder) ToArray() ([]Result, error) {
	t := q.table
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.dims == 0 || t.graph.Len() == 0 {
		return []Result{}, nil
	}
	if len(q.vector) != t.dims {
		return nil, fmt.Errorf("vectorstore: query vector dimension mismatch: expected %d, got %d", t.dims, len(q.vector))
	}

	var allowed map[string]bool
	if q.predicate != "" {
		ids, err := t.selectIDsLocked(q.predicate)
		if err != nil {
			return nil, err
		}
		allowed = make(map[string]bool, len(ids))
		for _, id := range ids {
			allowed[id] = true
		}
	}

	query := make([]float32, len(q.vector))
	copy(query, q.vector)
	normalizeInPlace(query)

	// Over-fetch from the graph since lazily-deleted or predicate-filtered
	// candidates get dropped below; k is a search-width heuristic, not a
	// contract the caller depends on.
	k := q.limit
	if k <= 0 {
		k = 10
	}
	fetchK := k * 4
	if allowed != nil && fetchK < t.graph.Len() {
		fetchK = t.graph.Len()
	}

	nodes := t.graph.Search(query, fetchK)

	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		id, ok := t.keyMap[node.Key]
		if !ok {
			continue
		}
		if allowed != nil && !allowed[id] {
			continue
		}
		row, err := t.rowByIDLocked(id)
		if err != nil {
			continue
		}
		dist := t.graph.Distance(query, node.Value)
		if dist < 0 {
			dist = 0
		}
		results = append(results, Result{Row: row, Distance: dist})
		if len(results) >= k {
			break
		}
	}

	return results, nil
}

func (t *Table) rowByIDLocked(id string) (Row, error) {
	if r, ok := t.cache.Get(id); ok {
		return r, nil
	}
	stmt := fmt.Sprintf(`SELECT id, text, path, page, offset, hash FROM %s WHERE id = ?`, t.name)
	row := t.db.QueryRow(stmt, id)
	var r Row
	if err := row.Scan(&r.ID, &r.Text, &r.Path, &r.Page, &r.Offset, &r.Hash); err != nil {
		return Row{}, fmt.Errorf("vectorstore: row %s not found: %w", id, err)
	}
	t.cache.Add(id, r)
	return r, nil
}

func normalizeColumns(cols []string) []string {
	seen := map[string]bool{"id": true}
	out := []string{"id"}
	for _, c := range cols {
		if c == "id" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func scanRow(rows *sql.Rows, cols []string) (Row, error) {
	dest := make([]any, len(cols))
	var r Row
	for i, c := range cols {
		switch c {
		case "id":
			dest[i] = &r.ID
		case "text":
			dest[i] = &r.Text
		case "path":
			dest[i] = &r.Path
		case "page":
			dest[i] = &r.Page
		case "offset":
			dest[i] = &r.Offset
		case "hash":
			dest[i] = &r.Hash
		default:
			var discard any
			dest[i] = &discard
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return Row{}, fmt.Errorf("vectorstore: scan row: %w", err)
	}
	return r, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
