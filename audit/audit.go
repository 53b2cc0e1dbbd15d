// Package audit keeps a SQLite journal of applied redactions. Only
// fingerprints and geometry are stored, never the removed text or the
// queries that found it.
package audit

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/redact"
)

// Memory opens a journal that lives only as long as the Journal.
const Memory = ":memory:"

// Journal is safe for concurrent use.
type Journal struct {
	db   *sql.DB
	path string
}

type Options struct {
	CreateIfNotExists bool
	EnableWAL         bool
}

func DefaultOptions() Options {
	return Options{CreateIfNotExists: true, EnableWAL: true}
}

// Open opens or creates the journal database at path, or an in-memory one
// for Memory.
func Open(path string, opts Options) (*Journal, error) {
	dsn := Memory
	if path != Memory {
		if !opts.CreateIfNotExists {
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("audit journal %s: %w", path, err)
			}
			dsn = path + "?mode=rw"
		} else {
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return nil, fmt.Errorf("create audit directory: %w", err)
			}
			dsn = path + "?mode=rwc"
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit journal: %w", err)
	}
	// One connection: SQLite has a single writer and an in-memory database
	// exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db, path: path}
	if opts.EnableWAL && path != Memory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if err := j.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit tables: %w", err)
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document TEXT NOT NULL,
		origin TEXT NOT NULL,
		query TEXT,
		applied INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		glyphs INTEGER NOT NULL,
		images INTEGER NOT NULL,
		annotations INTEGER NOT NULL,
		at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_document ON runs(document);

	CREATE TABLE IF NOT EXISTS items (
		run INTEGER NOT NULL REFERENCES runs(id),
		idx INTEGER NOT NULL,
		page INTEGER NOT NULL,
		llx REAL NOT NULL,
		lly REAL NOT NULL,
		urx REAL NOT NULL,
		ury REAL NOT NULL,
		applied INTEGER NOT NULL,
		error TEXT,
		PRIMARY KEY (run, idx)
	);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Fingerprint is the hex BLAKE2b-256 digest of b.
func Fingerprint(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Run is one applied batch of redactions. Query holds the fingerprint of
// the search query for origin "search".
type Run struct {
	ID          int64
	Document    string
	Origin      string
	Query       string
	Applied     int
	Failed      int
	Glyphs      int
	Images      int
	Annotations int
	At          time.Time
}

// Entry is the outcome of one spec of a run.
type Entry struct {
	Run     int64
	Index   int
	Page    int
	Rect    coords.Rect
	Applied bool
	Error   string
}

// Record stores rep under a new run and returns its id. The run's counters
// are filled from rep.
func (j *Journal) Record(ctx context.Context, run Run, rep *redact.Report) (int64, error) {
	totals := rep.Totals()
	run.Applied = rep.Applied()
	run.Failed = len(rep.Items) - run.Applied
	if run.At.IsZero() {
		run.At = time.Now().UTC()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO runs (document, origin, query, applied, failed, glyphs, images, annotations, at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Document, run.Origin, run.Query, run.Applied, run.Failed,
		totals.GlyphsRemoved, totals.ImagesRemoved, totals.AnnotationsRemoved, run.At)
	if err != nil {
		return 0, fmt.Errorf("insert audit run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("audit run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO items (run, idx, page, llx, lly, urx, ury, applied, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare audit items: %w", err)
	}
	defer stmt.Close()
	for _, it := range rep.Items {
		var msg sql.NullString
		if it.Err != nil {
			msg = sql.NullString{String: it.Err.Error(), Valid: true}
		}
		r := it.Rect
		if _, err := stmt.ExecContext(ctx, id, it.Index, it.Page, r.LLX, r.LLY, r.URX, r.URY, it.Applied, msg); err != nil {
			return 0, fmt.Errorf("insert audit item %d: %w", it.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit audit run: %w", err)
	}
	return id, nil
}

// Runs lists the runs recorded for a document fingerprint, oldest first.
// An empty fingerprint lists every run.
func (j *Journal) Runs(ctx context.Context, document string) ([]Run, error) {
	query := `SELECT id, document, origin, COALESCE(query, ''), applied, failed, glyphs, images, annotations, at FROM runs`
	var args []any
	if document != "" {
		query += ` WHERE document = ?`
		args = append(args, document)
	}
	query += ` ORDER BY id`
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Document, &r.Origin, &r.Query, &r.Applied, &r.Failed,
			&r.Glyphs, &r.Images, &r.Annotations, &r.At); err != nil {
			return nil, fmt.Errorf("scan audit run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Entries returns the items of one run in marking order.
func (j *Journal) Entries(ctx context.Context, run int64) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT run, idx, page, llx, lly, urx, ury, applied, COALESCE(error, '')
	FROM items WHERE run = ? ORDER BY idx`, run)
	if err != nil {
		return nil, fmt.Errorf("query audit items: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Run, &e.Index, &e.Page, &e.Rect.LLX, &e.Rect.LLY, &e.Rect.URX, &e.Rect.URY,
			&e.Applied, &e.Error); err != nil {
			return nil, fmt.Errorf("scan audit item: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
