package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/mitsuke/internal/models"
)

// openDB opens or creates the SQLite database at dbPath and initializes the
// schema. Parent directories are created if they do not exist. WAL mode keeps
// searches readable while indexing writes.
func openDB(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set synchronous: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scopes (
		path TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		scope_path TEXT NOT NULL DEFAULT '',
		last_modified INTEGER NOT NULL DEFAULT 0,
		file_size INTEGER NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL DEFAULT '',
		file_type TEXT NOT NULL DEFAULT '',
		status INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		indexed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_files_last_modified ON files(last_modified);
	CREATE INDEX IF NOT EXISTS idx_files_title ON files(title);

	CREATE TABLE IF NOT EXISTS fragments (
		file_path TEXT NOT NULL,
		frag_index INTEGER NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		PRIMARY KEY (file_path, frag_index)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// replaceFileRows swaps the file row and its fragment rows in one transaction.
func (s *Store) replaceFileRows(ctx context.Context, file *models.IndexedFile, frags []models.Fragment) error {
	if file.Status == 0 {
		file.Status = models.FileStatusIndexed
	}
	if file.Title == "" {
		file.Title = filepath.Base(file.Path)
	}
	file.IndexedAt = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO files (path, title, scope_path, last_modified, file_size, content_hash, file_type, status, error_message, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			scope_path = excluded.scope_path,
			last_modified = excluded.last_modified,
			file_size = excluded.file_size,
			content_hash = excluded.content_hash,
			file_type = excluded.file_type,
			status = excluded.status,
			error_message = excluded.error_message,
			indexed_at = excluded.indexed_at`,
		file.Path, file.Title, file.ScopePath, file.LastModified, file.Size,
		file.ContentHash, file.FileType, file.Status, nullString(file.ErrorMessage), file.IndexedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM fragments WHERE file_path = ?`, file.Path); err != nil {
		return fmt.Errorf("delete fragments: %w", err)
	}
	if len(frags) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO fragments (file_path, frag_index, location, content) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, f := range frags {
			if _, err := stmt.ExecContext(ctx, file.Path, i, f.Location, f.Text); err != nil {
				return fmt.Errorf("insert fragment %d: %w", i, err)
			}
		}
	}
	return tx.Commit()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

const fileColumns = `path, title, scope_path, last_modified, file_size, content_hash, file_type, status, COALESCE(error_message, ''), COALESCE(indexed_at, CURRENT_TIMESTAMP)`

func scanFile(scan func(...interface{}) error) (*models.IndexedFile, error) {
	var f models.IndexedFile
	err := scan(&f.Path, &f.Title, &f.ScopePath, &f.LastModified, &f.Size,
		&f.ContentHash, &f.FileType, &f.Status, &f.ErrorMessage, &f.IndexedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFile returns the indexed file record for path, or ErrNotFound.
func (s *Store) GetFile(ctx context.Context, path string) (*models.IndexedFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE path = ?`, path)
	f, err := scanFile(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FilesUnder returns all file records whose path starts with prefix, keyed by
// path. Used by the coordinator for delta detection.
func (s *Store) FilesUnder(ctx context.Context, prefix string) (map[string]*models.IndexedFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files WHERE path LIKE ?`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]*models.IndexedFile)
	for rows.Next() {
		f, err := scanFile(rows.Scan)
		if err != nil {
			return nil, err
		}
		out[f.Path] = f
	}
	return out, rows.Err()
}

// GetFragments returns a file's fragments ordered by index. A file row with no
// fragment rows is a valid empty extraction; a fragment set referenced by
// postings but absent here indicates corruption and is the caller's cue to
// surface ErrCorrupt.
func (s *Store) GetFragments(ctx context.Context, path string) ([]models.Fragment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, frag_index, location, content FROM fragments WHERE file_path = ? ORDER BY frag_index`,
		path,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var frags []models.Fragment
	for rows.Next() {
		var f models.Fragment
		if err := rows.Scan(&f.FilePath, &f.Index, &f.Location, &f.Text); err != nil {
			return nil, err
		}
		frags = append(frags, f)
	}
	return frags, rows.Err()
}

// GetFragment returns one fragment by file path and index.
func (s *Store) GetFragment(ctx context.Context, path string, index int) (*models.Fragment, error) {
	var f models.Fragment
	err := s.db.QueryRowContext(ctx,
		`SELECT file_path, frag_index, location, content FROM fragments WHERE file_path = ? AND frag_index = ?`,
		path, index,
	).Scan(&f.FilePath, &f.Index, &f.Location, &f.Text)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("fragment %s#%d: %w", path, index, ErrCorrupt)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// RegisterScope records a scope as active. Re-registering an existing scope
// reactivates it.
func (s *Store) RegisterScope(ctx context.Context, path, kind string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scopes (path, kind, active) VALUES (?, ?, 1)
		 ON CONFLICT(path) DO UPDATE SET kind = excluded.kind, active = 1`,
		path, kind,
	)
	return err
}

// Scopes returns all scopes, active first, newest first.
func (s *Store) Scopes(ctx context.Context) ([]models.Scope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, kind, active, created_at FROM scopes ORDER BY active DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Scope
	for rows.Next() {
		var sc models.Scope
		if err := rows.Scan(&sc.Path, &sc.Kind, &sc.Active, &sc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// RecentFiles returns the most recently modified indexed files, newest first.
func (s *Store) RecentFiles(ctx context.Context, limit int) ([]models.RecentFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, title, last_modified, file_type FROM files
		 WHERE status = ? ORDER BY last_modified DESC LIMIT ?`,
		models.FileStatusIndexed, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.RecentFile, 0, limit)
	for rows.Next() {
		var r models.RecentFile
		if err := rows.Scan(&r.FilePath, &r.Title, &r.LastModified, &r.FileType); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TitlesMatching returns distinct titles containing the substring, for
// filename suggestions.
func (s *Store) TitlesMatching(ctx context.Context, substr string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT title FROM files WHERE title LIKE ? AND status = ? LIMIT ?`,
		"%"+substr+"%", models.FileStatusIndexed, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ModTimes returns last_modified for each given path, for ranking tie-breaks.
func (s *Store) ModTimes(ctx context.Context, paths []string) (map[string]int64, error) {
	out := make(map[string]int64, len(paths))
	for _, p := range paths {
		var mt int64
		err := s.db.QueryRowContext(ctx, `SELECT last_modified FROM files WHERE path = ?`, p).Scan(&mt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[p] = mt
	}
	return out, nil
}
