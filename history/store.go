// Package history keeps per-chapter outcomes of every run in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chapterd/models"

	_ "github.com/mattn/go-sqlite3"
)

// fixed width so recorded_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS chapter_outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL,
	slug        TEXT    NOT NULL,
	chapter     INTEGER NOT NULL,
	outcome     TEXT    NOT NULL,
	site        TEXT    NOT NULL,
	images      INTEGER NOT NULL DEFAULT 0,
	replaced    INTEGER NOT NULL DEFAULT 0,
	error       TEXT    NOT NULL DEFAULT '',
	recorded_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chapter_outcomes_slug ON chapter_outcomes(slug, recorded_at);
`

// Entry is one recorded chapter outcome.
type Entry struct {
	RunID      string
	Slug       string
	Result     models.ChapterResult
	RecordedAt time.Time
}

// Store is the run history database. It satisfies engine.Recorder.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// title workers record concurrently
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one chapter outcome.
func (s *Store) Record(ctx context.Context, runID, slug string, res models.ChapterResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chapter_outcomes (run_id, slug, chapter, outcome, site, images, replaced, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, slug, res.Chapter, string(res.Outcome), string(res.Source), res.Images, res.Replaced, res.Err,
		s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record chapter %d of %s: %w", res.Chapter, slug, err)
	}
	return nil
}

// Recent returns the latest entries for slug, newest first. An empty slug lists all titles.
func (s *Store) Recent(ctx context.Context, slug string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT run_id, slug, chapter, outcome, site, images, replaced, error, recorded_at
		FROM chapter_outcomes`
	args := []any{}
	if slug != "" {
		query += ` WHERE slug = ?`
		args = append(args, slug)
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                   Entry
			outcome, site, when string
		)
		if err := rows.Scan(&e.RunID, &e.Slug, &e.Result.Chapter, &outcome, &site,
			&e.Result.Images, &e.Result.Replaced, &e.Result.Err, &when); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Result.Outcome = models.Outcome(outcome)
		e.Result.Source = models.Site(site)
		if t, err := time.Parse(timeLayout, when); err == nil {
			e.RecordedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
