// Package manifest keeps a sqlite catalog of the files an experiment wrote.
package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the manifest database name inside an output directory.
const FileName = "manifest.db"

// Kinds of recorded outputs.
const (
	KindGrid             = "grid"
	KindVerticalGrid     = "vertical_grid"
	KindInitialCondition = "initial_condition"
	KindSegment          = "segment"
	KindTides            = "tides"
)

// Entry is one written output file.
type Entry struct {
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	Boundary  string    `json:"boundary,omitempty"`
	Segment   int       `json:"segment,omitempty"`
	Variables []string  `json:"variables,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Manifest records outputs. It is safe for concurrent use.
type Manifest struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the manifest at path. ":memory:" gives a private
// in-memory catalog.
func Open(path string) (*Manifest, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS outputs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			kind TEXT NOT NULL,
			boundary TEXT,
			segment INTEGER,
			variables TEXT,
			created_at TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_outputs_path ON outputs(path);
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating outputs table: %w", err)
	}
	return &Manifest{db: db}, nil
}

// OpenDir opens the manifest inside an output directory.
func OpenDir(dir string) (*Manifest, error) {
	return Open(filepath.Join(dir, FileName))
}

// Record stores e, replacing an earlier entry for the same path.
func (m *Manifest) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO outputs (path, kind, boundary, segment, variables, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind = excluded.kind,
			boundary = excluded.boundary,
			segment = excluded.segment,
			variables = excluded.variables,
			created_at = excluded.created_at`,
		e.Path, e.Kind, e.Boundary, e.Segment, strings.Join(e.Variables, ","), e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", e.Path, err)
	}
	return nil
}

// List returns entries of the given kind, or all entries for "", in
// insertion order.
func (m *Manifest) List(ctx context.Context, kind string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	query := `SELECT path, kind, boundary, segment, variables, created_at FROM outputs`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY id`
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying outputs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                   Entry
			boundary, variables sql.NullString
			segment             sql.NullInt64
			created             string
		)
		if err := rows.Scan(&e.Path, &e.Kind, &boundary, &segment, &variables, &created); err != nil {
			return nil, fmt.Errorf("scanning output row: %w", err)
		}
		e.Boundary = boundary.String
		e.Segment = int(segment.Int64)
		if variables.String != "" {
			e.Variables = strings.Split(variables.String, ",")
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parsing created_at of %s: %w", e.Path, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (m *Manifest) Close() error {
	return m.db.Close()
}
