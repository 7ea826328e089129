package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bbiangul/kgraph/graph"
)

// Document statuses.
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusEmpty      = "empty"
	StatusError      = "error"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Document represents a row in the documents table.
type Document struct {
	ID           int64  `json:"id"`
	Source       string `json:"source"`
	ContentHash  string `json:"content_hash"`
	Status       string `json:"status"`
	SegmentCount int    `json:"segment_count"`
	TripleCount  int    `json:"triple_count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// SegmentTriple is a triple tagged with the segment it came from.
type SegmentTriple struct {
	Segment int `json:"segment"`
	graph.Triple
}

// Run is everything one pipeline pass produced for a document.
type Run struct {
	Source      string
	ContentHash string
	Status      string
	Segments    int
	Triples     []SegmentTriple
	Aliases     graph.AliasMap
	Graph       *graph.Graph
	// Communities maps node name to community ID. Missing nodes get -1.
	Communities map[string]int
}

// Stats holds row counts across the database.
type Stats struct {
	Documents    int `json:"documents"`
	Triples      int `json:"triples"`
	Aliases      int `json:"aliases"`
	Nodes        int `json:"nodes"`
	Edges        int `json:"edges"`
	CacheEntries int `json:"cache_entries"`
}

// Store wraps a SQLite database holding extraction runs and the LLM
// response cache.
type Store struct {
	db *sql.DB
}

// New opens or creates a SQLite database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Runs ---

// SaveRun persists a run in one transaction. A previous run with the same
// content hash is replaced and keeps its document ID.
func (s *Store) SaveRun(ctx context.Context, run Run) (int64, error) {
	if run.ContentHash == "" {
		return 0, errors.New("store: content hash required")
	}
	status := run.Status
	if status == "" {
		status = StatusReady
	}

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (source, content_hash, status, segment_count, triple_count)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(content_hash) DO UPDATE SET
				source = excluded.source,
				status = excluded.status,
				segment_count = excluded.segment_count,
				triple_count = excluded.triple_count,
				updated_at = CURRENT_TIMESTAMP
		`, run.Source, run.ContentHash, status, run.Segments, len(run.Triples)); err != nil {
			return fmt.Errorf("upserting document: %w", err)
		}
		if err := tx.QueryRowContext(ctx,
			"SELECT id FROM documents WHERE content_hash = ?", run.ContentHash).Scan(&id); err != nil {
			return fmt.Errorf("reading document id: %w", err)
		}
		if err := clearRun(ctx, tx, id); err != nil {
			return err
		}
		if err := insertTriples(ctx, tx, id, run.Triples); err != nil {
			return err
		}
		if err := insertAliases(ctx, tx, id, run.Aliases); err != nil {
			return err
		}
		return insertGraph(ctx, tx, id, run.Graph, run.Communities)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func clearRun(ctx context.Context, tx *sql.Tx, docID int64) error {
	for _, table := range []string{"triples", "aliases", "nodes", "edges"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE document_id = ?", docID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

func insertTriples(ctx context.Context, tx *sql.Tx, docID int64, triples []SegmentTriple) error {
	if len(triples) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO triples (document_id, segment_index, subject, predicate, object)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range triples {
		if _, err := stmt.ExecContext(ctx, docID, t.Segment, t.Subject, t.Predicate, t.Object); err != nil {
			return fmt.Errorf("inserting triple: %w", err)
		}
	}
	return nil
}

func insertAliases(ctx context.Context, tx *sql.Tx, docID int64, aliases graph.AliasMap) error {
	if len(aliases) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO aliases (document_id, group_index, canonical, variant)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, g := range aliases {
		// A group without variants still gets a row so it survives a reload.
		if len(g.Variants) == 0 {
			if _, err := stmt.ExecContext(ctx, docID, i, g.Canonical, nil); err != nil {
				return fmt.Errorf("inserting alias group: %w", err)
			}
			continue
		}
		for _, v := range g.Variants {
			if _, err := stmt.ExecContext(ctx, docID, i, g.Canonical, v); err != nil {
				return fmt.Errorf("inserting alias: %w", err)
			}
		}
	}
	return nil
}

func insertGraph(ctx context.Context, tx *sql.Tx, docID int64, g *graph.Graph, communities map[string]int) error {
	if g == nil {
		return nil
	}
	nodeStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO nodes (document_id, name, role, community) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer nodeStmt.Close()
	for _, n := range g.Nodes() {
		community := -1
		if c, ok := communities[n.Name]; ok {
			community = c
		}
		if _, err := nodeStmt.ExecContext(ctx, docID, n.Name, n.Role, community); err != nil {
			return fmt.Errorf("inserting node %q: %w", n.Name, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO edges (document_id, source, target, label) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer edgeStmt.Close()
	for _, e := range g.Edges() {
		if _, err := edgeStmt.ExecContext(ctx, docID, e.Source, e.Target, e.Label); err != nil {
			return fmt.Errorf("inserting edge: %w", err)
		}
	}
	return nil
}

// --- Documents ---

const documentColumns = "id, source, content_hash, status, segment_count, triple_count, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	d := &Document{}
	err := row.Scan(&d.ID, &d.Source, &d.ContentHash, &d.Status,
		&d.SegmentCount, &d.TripleCount, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
}

// GetDocumentByHash retrieves a document by content hash.
func (s *Store) GetDocumentByHash(ctx context.Context, hash string) (*Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE content_hash = ?", hash))
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus updates just the status field.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteDocument removes a document. Triples, aliases, nodes and edges
// go with it through ON DELETE CASCADE.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Run contents ---

// LoadTriples returns a document's triples in segment order.
func (s *Store) LoadTriples(ctx context.Context, docID int64) ([]SegmentTriple, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT segment_index, subject, predicate, object
		FROM triples WHERE document_id = ? ORDER BY segment_index, id
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SegmentTriple
	for rows.Next() {
		var t SegmentTriple
		if err := rows.Scan(&t.Segment, &t.Subject, &t.Predicate, &t.Object); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadAliases returns a document's alias map in stored group order.
func (s *Store) LoadAliases(ctx context.Context, docID int64) (graph.AliasMap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_index, canonical, variant
		FROM aliases WHERE document_id = ? ORDER BY group_index, id
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aliases := graph.AliasMap{}
	last := -1
	for rows.Next() {
		var (
			idx       int
			canonical string
			variant   sql.NullString
		)
		if err := rows.Scan(&idx, &canonical, &variant); err != nil {
			return nil, err
		}
		if idx != last {
			aliases = append(aliases, graph.AliasGroup{Canonical: canonical, Variants: []string{}})
			last = idx
		}
		if variant.Valid {
			g := &aliases[len(aliases)-1]
			g.Variants = append(g.Variants, variant.String)
		}
	}
	return aliases, rows.Err()
}

// LoadGraph rebuilds a document's graph along with node community IDs.
// A run that produced no graph returns a nil graph.
func (s *Store) LoadGraph(ctx context.Context, docID int64) (*graph.Graph, map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, role, community FROM nodes WHERE document_id = ? ORDER BY id", docID)
	if err != nil {
		return nil, nil, err
	}
	var nodes []graph.Node
	communities := make(map[string]int)
	for rows.Next() {
		var n graph.Node
		var c int
		if err := rows.Scan(&n.Name, &n.Role, &c); err != nil {
			rows.Close()
			return nil, nil, err
		}
		nodes = append(nodes, n)
		if c >= 0 {
			communities[n.Name] = c
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(nodes) == 0 {
		return nil, nil, nil
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT source, target, label FROM edges WHERE document_id = ? ORDER BY id", docID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var edges []graph.Edge
	for rows.Next() {
		var e graph.Edge
		if err := rows.Scan(&e.Source, &e.Target, &e.Label); err != nil {
			return nil, nil, err
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	g, err := graph.Restore(nodes, edges)
	if err != nil {
		return nil, nil, fmt.Errorf("restoring graph for document %d: %w", docID, err)
	}
	return g, communities, nil
}

// --- LLM cache ---

// CacheGet returns a cached response for key.
func (s *Store) CacheGet(ctx context.Context, key string) (string, bool, error) {
	var resp string
	err := s.db.QueryRowContext(ctx, "SELECT response FROM llm_cache WHERE key = ?", key).Scan(&resp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return resp, true, nil
}

// CachePut stores a response under key, replacing any previous entry.
func (s *Store) CachePut(ctx context.Context, key, model, response string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_cache (key, model, response) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			model = excluded.model,
			response = excluded.response,
			created_at = CURRENT_TIMESTAMP
	`, key, model, response)
	return err
}

// ClearCache deletes every cached response and reports how many were removed.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM llm_cache")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Stats ---

// Stats returns row counts for each table.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM triples", &stats.Triples},
		{"SELECT COUNT(DISTINCT document_id || ':' || group_index) FROM aliases", &stats.Aliases},
		{"SELECT COUNT(*) FROM nodes", &stats.Nodes},
		{"SELECT COUNT(*) FROM edges", &stats.Edges},
		{"SELECT COUNT(*) FROM llm_cache", &stats.CacheEntries},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
