// Package store provides the persistent index store: file and fragment records
// in SQLite, inverted term postings in a Bleve index. The store exclusively
// owns both; the coordinator and query engine go through its operations and
// never touch postings directly.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"

	"github.com/hyperjump/mitsuke/internal/models"
)

// ErrNotFound is returned when no indexed data exists for a path.
var ErrNotFound = errors.New("not indexed")

// ErrCorrupt is returned when the postings and file records disagree.
// Recoverable by a rebuild.
var ErrCorrupt = errors.New("index inconsistent, rebuild required")

// Store is the single shared mutable resource of the engine. Readers never
// block on writers beyond the latency of one posting-set swap: SQLite runs in
// WAL mode and Bleve mutations are applied as batches. Writes to the same file
// path serialize through a sharded lock table.
type Store struct {
	db       *sql.DB
	postings bleve.Index
	locks    *pathLocks

	dbPath       string
	postingsPath string
}

// New opens or creates the store at the given paths. Parent directories are
// created if they do not exist.
func New(dbPath, postingsPath string) (*Store, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	postings, err := openPostings(postingsPath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{
		db:           db,
		postings:     postings,
		locks:        newPathLocks(),
		dbPath:       dbPath,
		postingsPath: postingsPath,
	}, nil
}

// UpsertFile replaces all postings for file.Path atomically: the file row and
// fragment rows are swapped in one transaction, then the Bleve batch removes
// the old fragment documents and indexes the new ones. Idempotent under
// re-indexing the same content. A write carrying an older last_modified than
// the stored record is stale and is dropped without effect.
func (s *Store) UpsertFile(ctx context.Context, file *models.IndexedFile, frags []models.Fragment) error {
	unlock := s.locks.lock(file.Path)
	defer unlock()

	var prevModified int64
	var prevFrags int
	err := s.db.QueryRowContext(ctx,
		`SELECT f.last_modified, (SELECT COUNT(*) FROM fragments WHERE file_path = f.path)
		 FROM files f WHERE f.path = ?`, file.Path,
	).Scan(&prevModified, &prevFrags)
	switch {
	case err == sql.ErrNoRows:
		// new file
	case err != nil:
		return fmt.Errorf("lookup file: %w", err)
	case prevModified > file.LastModified:
		// A newer upsert already completed; last completed write wins.
		return nil
	}

	if err := s.replaceFileRows(ctx, file, frags); err != nil {
		return err
	}
	return s.swapPostings(file, frags, prevFrags)
}

// MarkFileError records a single-file extraction failure. The file stays in
// the record set with an error status so status queries account for it;
// existing postings for the path are removed.
func (s *Store) MarkFileError(ctx context.Context, file *models.IndexedFile, cause error) error {
	unlock := s.locks.lock(file.Path)
	defer unlock()

	file.Status = models.FileStatusError
	file.ErrorMessage = cause.Error()

	var prevFrags int
	_ = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fragments WHERE file_path = ?`, file.Path,
	).Scan(&prevFrags)

	if err := s.replaceFileRows(ctx, file, nil); err != nil {
		return err
	}
	return s.swapPostings(file, nil, prevFrags)
}

// DeleteByPathPrefix removes all file, fragment, and posting data whose path
// starts with prefix, and deactivates scopes under it. Returns the number of
// files removed. An empty prefix clears the whole index.
func (s *Store) DeleteByPathPrefix(ctx context.Context, prefix string) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, COUNT(*) FROM fragments WHERE file_path LIKE ? GROUP BY file_path`,
		prefix+"%",
	)
	if err != nil {
		return 0, fmt.Errorf("collect fragments: %w", err)
	}
	type entry struct {
		path string
		n    int
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.path, &e.n); err != nil {
			_ = rows.Close()
			return 0, err
		}
		entries = append(entries, e)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	// Files with zero fragments still carry one posting document.
	fileRows, err := s.db.QueryContext(ctx, `SELECT path FROM files WHERE path LIKE ?`, prefix+"%")
	if err != nil {
		return 0, fmt.Errorf("collect files: %w", err)
	}
	var filePaths []string
	for fileRows.Next() {
		var p string
		if err := fileRows.Scan(&p); err != nil {
			_ = fileRows.Close()
			return 0, err
		}
		filePaths = append(filePaths, p)
	}
	_ = fileRows.Close()

	batch := s.postings.NewBatch()
	for _, e := range entries {
		for i := 0; i < e.n; i++ {
			batch.Delete(fragmentID(e.path, i))
		}
	}
	for _, p := range filePaths {
		batch.Delete(fragmentID(p, 0))
	}
	if err := s.postings.Batch(batch); err != nil {
		return 0, fmt.Errorf("delete postings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path LIKE ?`, prefix+"%")
	if err != nil {
		return 0, fmt.Errorf("delete files: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fragments WHERE file_path LIKE ?`, prefix+"%"); err != nil {
		return 0, fmt.Errorf("delete fragments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE scopes SET active = 0 WHERE path LIKE ?`, prefix+"%"); err != nil {
		return 0, fmt.Errorf("deactivate scopes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ClearAll removes every record and posting. Used by Rebuild.
func (s *Store) ClearAll(ctx context.Context) error {
	_, err := s.DeleteByPathPrefix(ctx, "")
	return err
}

// Status reports, for each input path, whether any indexed file exists under
// it and how many. Paths with no data report not_indexed with a zero count.
func (s *Store) Status(ctx context.Context, paths []string) ([]models.IndexStatus, error) {
	out := make([]models.IndexStatus, 0, len(paths))
	for _, p := range paths {
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM files WHERE path LIKE ? AND status = ?`,
			p+"%", models.FileStatusIndexed,
		).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("count indexed files: %w", err)
		}
		status := models.IndexStatusNotIndexed
		if count > 0 {
			status = models.IndexStatusIndexed
		}
		out = append(out, models.IndexStatus{Path: p, Status: status, IndexedCount: count})
	}
	return out, nil
}

// Stats is a diagnostic snapshot of the store.
type Stats struct {
	DatabasePath  string         `json:"database_path"`
	DatabaseSize  int64          `json:"database_size_bytes"`
	PostingsPath  string         `json:"postings_path"`
	PostingsSize  int64          `json:"postings_size_bytes"`
	FileCount     int64          `json:"file_count"`
	FragmentCount int64          `json:"fragment_count"`
	PostingDocs   uint64         `json:"posting_docs"`
	FileTypes     map[string]int `json:"file_types"`
	SamplePaths   []string       `json:"sample_paths"`
	ActiveScopes  int            `json:"active_scopes"`
}

// Stats returns aggregate counts, storage sizes, a file-type histogram, and
// sample paths. Diagnostic only.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		DatabasePath: s.dbPath,
		PostingsPath: s.postingsPath,
		FileTypes:    make(map[string]int),
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&st.FileCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments`).Scan(&st.FragmentCount); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT file_type, COUNT(*) FROM files GROUP BY file_type`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			_ = rows.Close()
			return nil, err
		}
		st.FileTypes[t] = n
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT path FROM files LIMIT 10`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			_ = rows.Close()
			return nil, err
		}
		st.SamplePaths = append(st.SamplePaths, p)
	}
	_ = rows.Close()

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scopes WHERE active = 1`).Scan(&st.ActiveScopes); err != nil {
		return nil, err
	}

	if docs, err := s.postings.DocCount(); err == nil {
		st.PostingDocs = docs
	}
	st.DatabaseSize = diskUsage(s.dbPath)
	st.PostingsSize = diskUsage(s.postingsPath)
	return st, nil
}

// Close closes the database and the postings index.
func (s *Store) Close() error {
	err := s.db.Close()
	if perr := s.postings.Close(); err == nil {
		err = perr
	}
	return err
}

// fragmentID is the posting document ID for fragment i of a file.
func fragmentID(path string, i int) string {
	return fmt.Sprintf("%s#%d", path, i)
}

// diskUsage returns the total size of a file or directory tree in bytes.
// Missing paths contribute zero.
func diskUsage(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	_ = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !fi.IsDir() {
			total += fi.Size()
		}
		return nil
	})
	return total
}
