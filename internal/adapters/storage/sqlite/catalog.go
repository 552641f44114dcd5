// Package sqlite persists the recording catalog: metadata in SQLite via the
// pure-Go modernc.org/sqlite driver, media as files next to it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"bgstream/internal/domain"
)

// Catalog implements the recording repository on SQLite.
type Catalog struct {
	db       *sql.DB
	mediaDir string

	maxRecordings int
	maxBytes      int64
}

// Open opens (or creates) the catalog database at dbPath. Media files are
// written under mediaDir.
func Open(dbPath, mediaDir string, maxRecordings int, maxBytes int64) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(mediaDir, 0o700); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if maxRecordings <= 0 {
		maxRecordings = domain.CapacityHint
	}
	c := &Catalog{db: db, mediaDir: mediaDir, maxRecordings: maxRecordings, maxBytes: maxBytes}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) migrate() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS recordings (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			duration    INTEGER NOT NULL DEFAULT 0,
			size        INTEGER NOT NULL DEFAULT 0,
			mime_type   TEXT NOT NULL,
			path        TEXT NOT NULL,
			created_at  INTEGER NOT NULL
		)
	`)
	return err
}

const recordingColumns = `id, name, duration, size, mime_type, path, created_at`

// AddRecording writes the media file, inserts the row and evicts the oldest
// rows beyond the count or byte cap.
func (c *Catalog) AddRecording(ctx context.Context, r domain.Recording) ([]domain.Recording, error) {
	if r.Data != nil {
		r.Path = filepath.Join(c.mediaDir, r.ID+".mjpeg")
		if err := os.WriteFile(r.Path, r.Data, 0o600); err != nil {
			return nil, fmt.Errorf("write media: %w", err)
		}
		r.Data = nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO recordings (`+recordingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, r.Duration, r.Size, r.MimeType, r.Path, r.CreatedAt.UnixNano()); err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT `+recordingColumns+` FROM recordings ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	all, err := scanRecordings(rows)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, x := range all {
		total += x.Size
	}
	var evicted []domain.Recording
	for len(all) > 1 && (len(all) > c.maxRecordings || (c.maxBytes > 0 && total > c.maxBytes)) {
		oldest := all[len(all)-1]
		all = all[:len(all)-1]
		total -= oldest.Size
		if _, err := tx.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, oldest.ID); err != nil {
			return nil, fmt.Errorf("evict recording: %w", err)
		}
		evicted = append(evicted, oldest)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for _, e := range evicted {
		_ = os.Remove(e.Path)
	}
	return evicted, nil
}

func (c *Catalog) GetRecording(ctx context.Context, id string) (domain.Recording, bool, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Recording{}, false, nil
	}
	if err != nil {
		return domain.Recording{}, false, err
	}
	return r, true, nil
}

func (c *Catalog) ListRecordings(ctx context.Context, limit, offset int) ([]domain.Recording, int, error) {
	var total int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recordings`).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = -1
	}
	offset = max(offset, 0)
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+recordingColumns+` FROM recordings
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := scanRecordings(rows)
	return out, total, err
}

func (c *Catalog) DeleteRecording(ctx context.Context, id string) error {
	r, ok, err := c.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id); err != nil {
		return err
	}
	if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media: %w", err)
	}
	return nil
}

func (c *Catalog) RecordingStats(ctx context.Context) (domain.CatalogStats, error) {
	var count int
	var total int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM recordings`).Scan(&count, &total)
	if err != nil {
		return domain.CatalogStats{}, err
	}
	return domain.NewCatalogStats(count, total), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(s scanner) (domain.Recording, error) {
	var r domain.Recording
	var created int64
	if err := s.Scan(&r.ID, &r.Name, &r.Duration, &r.Size, &r.MimeType, &r.Path, &created); err != nil {
		return domain.Recording{}, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	r.SizeHuman = domain.FormatSize(r.Size)
	return r, nil
}

func scanRecordings(rows *sql.Rows) ([]domain.Recording, error) {
	defer rows.Close()
	var out []domain.Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
