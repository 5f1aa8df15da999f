// Package indexer orchestrates file enumeration, delta detection, and batch
// application of extracted fragments against the index store.
package indexer

import (
	"context"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/extract"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/store"
)

// mtimeTolerance is the modification-time slack, in seconds, below which a
// file is considered unchanged.
const mtimeTolerance = 1

// Coordinator runs indexing jobs against the store. Extraction fans out over
// a bounded worker group; a parse failure on one file is isolated and never
// aborts the batch.
type Coordinator struct {
	store     *store.Store
	extractor *extract.Extractor
	cfg       *config.IndexConfig
	logger    *zap.Logger

	// baseCtx bounds background jobs (rebuild); Close cancels it.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	active map[string]struct{} // roots with an in-flight job
}

// NewCoordinator creates a coordinator with the given dependencies.
func NewCoordinator(st *store.Store, ex *extract.Extractor, cfg *config.IndexConfig, logger *zap.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:     st,
		extractor: ex,
		cfg:       cfg,
		logger:    logger,
		baseCtx:   ctx,
		cancel:    cancel,
		active:    make(map[string]struct{}),
	}
}

// Close aborts background jobs. Files already committed stay committed.
func (c *Coordinator) Close() {
	c.cancel()
}

// IsIndexing reports whether an in-flight job covers path (the job root is an
// ancestor of path or vice versa).
func (c *Coordinator) IsIndexing(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for root := range c.active {
		if underPath(root, path) || underPath(path, root) {
			return true
		}
	}
	return false
}

// underPath reports whether p equals root or lies inside it. A plain prefix
// test would let /docs claim /docsother.
func underPath(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

func (c *Coordinator) begin(root string) func() {
	c.mu.Lock()
	c.active[root] = struct{}{}
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.active, root)
		c.mu.Unlock()
	}
}

// IndexPath indexes a single file or a folder, registering it as a scope.
func (c *Coordinator) IndexPath(ctx context.Context, path string) (*models.IndexResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if info.IsDir() {
		return c.IndexFolder(ctx, abs)
	}

	done := c.begin(abs)
	defer done()
	if err := c.store.RegisterScope(ctx, abs, models.ScopeKindFile); err != nil {
		return nil, fmt.Errorf("register scope: %w", err)
	}
	res := &models.IndexResult{Total: 1}
	if err := c.indexOne(ctx, abs, abs); err != nil {
		res.Errors = 1
		return res, nil
	}
	res.Indexed = 1
	return res, nil
}

// IndexFolder enumerates eligible files under path, extracts each, and upserts
// the results. Unreadable files and parse failures are counted as errors, not
// fatal. Returns counts for the run.
func (c *Coordinator) IndexFolder(ctx context.Context, path string) (*models.IndexResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", abs)
	}

	done := c.begin(abs)
	defer done()
	if err := c.store.RegisterScope(ctx, abs, models.ScopeKindFolder); err != nil {
		return nil, fmt.Errorf("register scope: %w", err)
	}

	files, walkErrors := c.enumerate(abs)
	res := &models.IndexResult{Total: len(files), Errors: walkErrors}
	indexed, errored := c.indexAll(ctx, abs, files)
	res.Indexed = indexed
	res.Errors += errored
	c.logger.Info("folder indexed",
		zap.String("path", abs),
		zap.Int("indexed", res.Indexed),
		zap.Int("total", res.Total),
		zap.Int("errors", res.Errors),
	)
	return res, ctx.Err()
}

// BatchIndex incrementally indexes each path: only files that are new or whose
// modification time/size changed are reprocessed; unchanged files are skipped.
// Missing paths are skipped. Partial failure still reports accurate counts.
func (c *Coordinator) BatchIndex(ctx context.Context, paths []string) (*models.BatchResult, error) {
	res := &models.BatchResult{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			c.logger.Warn("batch index path skipped", zap.String("path", abs), zap.Error(err))
			continue
		}

		done := c.begin(abs)
		kind := models.ScopeKindFolder
		var candidates []string
		if info.IsDir() {
			candidates, _ = c.enumerate(abs)
		} else {
			kind = models.ScopeKindFile
			candidates = []string{abs}
		}
		if err := c.store.RegisterScope(ctx, abs, kind); err != nil {
			done()
			return nil, fmt.Errorf("register scope: %w", err)
		}

		existing, err := c.store.FilesUnder(ctx, abs)
		if err != nil {
			done()
			return nil, fmt.Errorf("load indexed files: %w", err)
		}
		var delta []string
		for _, f := range candidates {
			if needsIndexing(existing[f], f) {
				delta = append(delta, f)
			}
		}
		indexed, _ := c.indexAll(ctx, abs, delta)
		res.PathsProcessed++
		res.NewFilesIndexed += indexed
		done()

		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}

	statuses, err := c.store.Status(ctx, []string{""})
	if err == nil && len(statuses) == 1 {
		res.TotalIndexed = statuses[0].IndexedCount
	}
	return res, nil
}

// DeleteIndex removes all indexed data under path and returns the count removed.
func (c *Coordinator) DeleteIndex(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	n, err := c.store.DeleteByPathPrefix(ctx, abs)
	if err != nil {
		return 0, err
	}
	c.logger.Info("index deleted", zap.String("path", abs), zap.Int("files", n))
	return n, nil
}

// Rebuild clears the whole index and re-indexes the given paths in the
// background. Returns a job ID for the acknowledgment. Recovery path for
// stale or corrupt index state.
func (c *Coordinator) Rebuild(ctx context.Context, paths []string) (string, error) {
	if err := c.store.ClearAll(ctx); err != nil {
		return "", fmt.Errorf("clear index: %w", err)
	}
	jobID := uuid.New().String()
	go func() {
		for _, p := range paths {
			if c.baseCtx.Err() != nil {
				return
			}
			if _, err := c.IndexPath(c.baseCtx, p); err != nil {
				c.logger.Warn("rebuild path failed", zap.String("job", jobID), zap.String("path", p), zap.Error(err))
			}
		}
		c.logger.Info("rebuild complete", zap.String("job", jobID), zap.Int("paths", len(paths)))
	}()
	return jobID, nil
}

// enumerate walks root and returns eligible regular files plus the number of
// enumeration errors. Directory symlinks are not followed, so cycles cannot
// occur; unreadable entries are counted and skipped.
func (c *Coordinator) enumerate(root string) ([]string, int) {
	var files []string
	errors := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			errors++
			c.logger.Warn("enumeration error", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !extensionAllowed(filepath.Ext(path), c.cfg.Extensions) {
			return nil
		}
		// Resolve symlinks so only regular files are indexed.
		info, statErr := os.Stat(path)
		if statErr != nil || !info.Mode().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, errors
}

// indexAll extracts and upserts the given files with bounded parallelism.
// Returns (indexed, errored). Context cancellation stops scheduling new files;
// already committed files stay committed.
func (c *Coordinator) indexAll(ctx context.Context, scopePath string, files []string) (int, int) {
	var indexed, errored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		f := f
		g.Go(func() error {
			if err := c.indexOne(gctx, f, scopePath); err != nil {
				errored.Add(1)
			} else {
				indexed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(indexed.Load()), int(errored.Load())
}

// indexOne extracts one file and upserts it. Extraction failure marks the file
// with an error status and returns the cause; zero-byte and empty-extraction
// files are still recorded so status queries report them as indexed.
func (c *Coordinator) indexOne(ctx context.Context, path, scopePath string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	file := &models.IndexedFile{
		Path:         path,
		Title:        filepath.Base(path),
		ScopePath:    scopePath,
		LastModified: info.ModTime().Unix(),
		Size:         info.Size(),
		FileType:     strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}

	frags, err := c.extractor.Extract(path)
	if err != nil {
		c.logger.Warn("extraction failed", zap.String("path", path), zap.Error(err))
		if markErr := c.store.MarkFileError(ctx, file, err); markErr != nil {
			c.logger.Error("mark file error failed", zap.String("path", path), zap.Error(markErr))
		}
		return err
	}
	file.ContentHash = contentHash(frags)
	file.Status = models.FileStatusIndexed

	if err := c.store.UpsertFile(ctx, file, frags); err != nil {
		c.logger.Error("upsert failed", zap.String("path", path), zap.Error(err))
		return err
	}
	c.logger.Debug("file indexed", zap.String("path", path), zap.Int("fragments", len(frags)))
	return nil
}

// needsIndexing reports whether a file is new or modified since last index.
func needsIndexing(existing *models.IndexedFile, path string) bool {
	if existing == nil {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	delta := info.ModTime().Unix() - existing.LastModified
	if delta < 0 {
		delta = -delta
	}
	return delta > mtimeTolerance || info.Size() != existing.Size
}

// contentHash is an FNV-64a hash over the extracted fragment text, kept for
// integrity checks on rebuild.
func contentHash(frags []models.Fragment) string {
	h := fnv.New64a()
	for _, f := range frags {
		_, _ = h.Write([]byte(f.Text))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
