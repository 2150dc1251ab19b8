package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/panbanda/clonestream/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	contents TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	stored_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS clones (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_name TEXT NOT NULL,
	source_start INTEGER NOT NULL,
	source_end INTEGER NOT NULL,
	original_code TEXT NOT NULL DEFAULT '',
	UNIQUE (source_name, source_start, source_end)
);
CREATE TABLE IF NOT EXISTS clone_targets (
	clone_id INTEGER NOT NULL REFERENCES clones(id),
	name TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	PRIMARY KEY (clone_id, name, start_line, end_line)
);
`

// SQLiteStore persists the corpus in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema. An empty path or ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, storageErr("create database directory "+dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open "+path, err)
	}
	// One connection: serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, storageErr("init schema", err)
	}
	logger.Debug().Str("path", path).Msg("sqlite store ready")
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) IsFileProcessed(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM files WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, storageErr("query file", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) File(ctx context.Context, name string) (models.FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, contents, content_hash, stored_at FROM files WHERE name = ?`, name)
	rec, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FileRecord{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return models.FileRecord{}, storageErr("query file", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (models.FileRecord, error) {
	var rec models.FileRecord
	var storedAt int64
	if err := row.Scan(&rec.Name, &rec.Contents, &rec.ContentHash, &storedAt); err != nil {
		return models.FileRecord{}, err
	}
	rec.StoredAt = time.Unix(0, storedAt).UTC()
	return rec, nil
}

func (s *SQLiteStore) StoreFile(ctx context.Context, rec models.FileRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertFile(ctx, tx, rec)
	})
}

func insertFile(ctx context.Context, tx *sql.Tx, rec models.FileRecord) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM files WHERE name = ?`, rec.Name).Scan(&n); err != nil {
		return storageErr("query file", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrExists, rec.Name)
	}

	storedAt := rec.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO files (name, contents, content_hash, stored_at) VALUES (?, ?, ?, ?)`,
		rec.Name, rec.Contents, rec.ContentHash, storedAt.UnixNano())
	if err != nil {
		return storageErr("insert file", err)
	}
	return nil
}

func (s *SQLiteStore) AllFiles(ctx context.Context) ([]models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, contents, content_hash, stored_at FROM files ORDER BY id`)
	if err != nil {
		return nil, storageErr("query files", err)
	}
	defer rows.Close()

	var out []models.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, storageErr("scan file", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate files", err)
	}
	return out, nil
}

func (s *SQLiteStore) NumberOfFiles(ctx context.Context) (int, error) {
	return s.count(ctx, "files")
}

func (s *SQLiteStore) NumberOfClones(ctx context.Context) (int, error) {
	return s.count(ctx, "clones")
}

func (s *SQLiteStore) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table).Scan(&n); err != nil {
		return 0, storageErr("count "+table, err)
	}
	return n, nil
}

func (s *SQLiteStore) StoreClones(ctx context.Context, _ string, clones []models.Clone) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return mergeClones(ctx, tx, clones)
	})
}

// mergeClones upserts each clone by source span and adds targets that are
// not already recorded. The first non-empty original code wins.
func mergeClones(ctx context.Context, tx *sql.Tx, clones []models.Clone) error {
	for _, c := range clones {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO clones (source_name, source_start, source_end, original_code)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (source_name, source_start, source_end) DO UPDATE SET
				original_code = CASE WHEN clones.original_code = '' THEN excluded.original_code
				ELSE clones.original_code END`,
			c.SourceFile, c.SourceStart, c.SourceEnd, c.OriginalCode)
		if err != nil {
			return storageErr("upsert clone "+c.Key().String(), err)
		}

		var id int64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM clones WHERE source_name = ? AND source_start = ? AND source_end = ?`,
			c.SourceFile, c.SourceStart, c.SourceEnd).Scan(&id)
		if err != nil {
			return storageErr("lookup clone "+c.Key().String(), err)
		}

		for _, t := range c.Targets {
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO clone_targets (clone_id, name, start_line, end_line) VALUES (?, ?, ?, ?)`,
				id, t.File, t.StartLine, t.EndLine)
			if err != nil {
				return storageErr("insert clone target", err)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) Clones(ctx context.Context) ([]models.Clone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_name, source_start, source_end, original_code FROM clones ORDER BY id`)
	if err != nil {
		return nil, storageErr("query clones", err)
	}

	var out []models.Clone
	index := make(map[int64]int)
	for rows.Next() {
		var id int64
		var c models.Clone
		if err := rows.Scan(&id, &c.SourceFile, &c.SourceStart, &c.SourceEnd, &c.OriginalCode); err != nil {
			rows.Close()
			return nil, storageErr("scan clone", err)
		}
		index[id] = len(out)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("iterate clones", err)
	}
	rows.Close()

	trows, err := s.db.QueryContext(ctx,
		`SELECT clone_id, name, start_line, end_line FROM clone_targets ORDER BY clone_id, rowid`)
	if err != nil {
		return nil, storageErr("query clone targets", err)
	}
	defer trows.Close()

	for trows.Next() {
		var id int64
		var t models.CloneTarget
		if err := trows.Scan(&id, &t.File, &t.StartLine, &t.EndLine); err != nil {
			return nil, storageErr("scan clone target", err)
		}
		if idx, ok := index[id]; ok {
			out[idx].Targets = append(out[idx].Targets, t)
		}
	}
	if err := trows.Err(); err != nil {
		return nil, storageErr("iterate clone targets", err)
	}
	return out, nil
}

// Commit stores rec and merges clones in one transaction.
func (s *SQLiteStore) Commit(ctx context.Context, rec models.FileRecord, clones []models.Clone) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertFile(ctx, tx, rec); err != nil {
			return err
		}
		return mergeClones(ctx, tx, clones)
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}
	return nil
}
