// Package storage persists labelling sessions in a local SQLite file so
// interrupted runs can be resumed and reviewed.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
)

// ErrNotFound is returned when no matching session exists.
var ErrNotFound = errors.New("session not found")

const timeLayout = "2006-01-02 15:04:05"

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
  id         TEXT PRIMARY KEY,
  protocol   TEXT NOT NULL CHECK (protocol IN ('clinical','histopath')),
  root       TEXT NOT NULL,
  annotator  TEXT NOT NULL,
  started_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS label_entries (
  id            INTEGER PRIMARY KEY,
  session_id    TEXT NOT NULL REFERENCES sessions(id),
  case_id       TEXT NOT NULL,
  visit_id      TEXT NOT NULL,
  body_site     TEXT,
  magnification TEXT,
  mag_value     INTEGER NOT NULL DEFAULT 0,
  image_file    TEXT NOT NULL,
  image_path    TEXT NOT NULL,
  category      TEXT NOT NULL,
  subtype       TEXT,
  comment       TEXT,
  time_spent    REAL NOT NULL DEFAULT 0,
  annotator     TEXT NOT NULL,
  labeled_at    DATETIME NOT NULL,
  UNIQUE(session_id, image_path)
);
CREATE INDEX IF NOT EXISTS idx_labels_session ON label_entries(session_id);
CREATE INDEX IF NOT EXISTS idx_labels_case ON label_entries(session_id, case_id);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// CreateSession registers session metadata, replacing any previous row
// with the same ID so repeated autosaves stay idempotent.
func (d *DB) CreateSession(ctx context.Context, meta SessionMeta) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO sessions(id, protocol, root, annotator, started_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET annotator = excluded.annotator`,
		meta.ID, meta.Protocol, meta.Root, meta.Annotator, meta.StartedAt.Format(timeLayout))
	return err
}

// LatestSession returns the newest session for a protocol and dataset
// root; used by `label --resume`.
func (d *DB) LatestSession(ctx context.Context, protocol, root string) (SessionMeta, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT id, protocol, root, annotator, started_at FROM sessions
		 WHERE protocol = ? AND root = ? ORDER BY started_at DESC, id DESC LIMIT 1`,
		protocol, root)
	return scanSession(row)
}

// ListSessions returns all known sessions, newest first.
func (d *DB) ListSessions(ctx context.Context) ([]SessionMeta, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, protocol, root, annotator, started_at FROM sessions ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionMeta
	for rows.Next() {
		m, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(r rowScanner) (SessionMeta, error) {
	var m SessionMeta
	var started string
	err := r.Scan(&m.ID, &m.Protocol, &m.Root, &m.Annotator, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.StartedAt = parseTime(started)
	return m, nil
}

// UpsertEntries writes the entries inside one transaction, overwriting any
// earlier label for the same image in the same session.
func (d *DB) UpsertEntries(ctx context.Context, sessionID string, entries []labels.Entry) error {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO label_entries(session_id, case_id, visit_id, body_site, magnification,
  mag_value, image_file, image_path, category, subtype, comment, time_spent, annotator, labeled_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(session_id, image_path) DO UPDATE SET
  category = excluded.category,
  subtype = excluded.subtype,
  comment = excluded.comment,
  time_spent = excluded.time_spent,
  annotator = excluded.annotator,
  labeled_at = excluded.labeled_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err = stmt.ExecContext(ctx,
			sessionID, e.Case, e.Visit, nullIfEmpty(e.BodySite), nullIfEmpty(e.Magnification),
			e.MagValue, e.File, e.Path, e.Category, nullIfEmpty(e.Subtype), nullIfEmpty(e.Comment),
			e.TimeSpent, e.Annotator, e.LabeledAt.Format(timeLayout)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListEntries returns a session's labels ordered like the CSVs.
func (d *DB) ListEntries(ctx context.Context, sessionID string) ([]labels.Entry, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT case_id, visit_id, body_site, magnification, mag_value, image_file,
       image_path, category, subtype, comment, time_spent, annotator, labeled_at
FROM label_entries WHERE session_id = ?
ORDER BY case_id, visit_id, body_site, mag_value, image_file`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []labels.Entry
	for rows.Next() {
		var e labels.Entry
		var bodySite, magnification, subtype, comment sql.NullString
		var labelled string
		if err := rows.Scan(&e.Case, &e.Visit, &bodySite, &magnification, &e.MagValue,
			&e.File, &e.Path, &e.Category, &subtype, &comment, &e.TimeSpent,
			&e.Annotator, &labelled); err != nil {
			return nil, err
		}
		e.BodySite = bodySite.String
		e.Magnification = magnification.String
		e.Subtype = subtype.String
		e.Comment = comment.String
		e.LabeledAt = parseTime(labelled)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetStats counts labels per protocol and category across all sessions.
func (d *DB) GetStats(ctx context.Context) ([]CategoryStats, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT s.protocol, l.category, COUNT(*)
FROM label_entries l JOIN sessions s ON s.id = l.session_id
GROUP BY s.protocol, l.category
ORDER BY s.protocol, l.category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []CategoryStats
	for rows.Next() {
		var s CategoryStats
		if err := rows.Scan(&s.Protocol, &s.Category, &s.Count); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func parseTime(s string) time.Time {
	// SQLite CURRENT_TIMESTAMP format first, then RFC3339.
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
