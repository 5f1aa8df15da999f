package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/extract"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/store"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "test.db"), filepath.Join(dir, "postings.bleve"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.IndexConfig{
		Extensions: []string{".txt", ".md", ".docx"},
		Workers:    2,
	}
	c := NewCoordinator(st, extract.NewExtractor(), cfg, zap.NewNop())
	t.Cleanup(c.Close)
	return c, st
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIndexFolder(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, dir, "a.txt", "alpha content here")
	writeFile(t, dir, "b.md", "markdown notes")
	writeFile(t, dir, "skip.bin", "binary blob")

	res, err := c.IndexFolder(ctx, dir)
	if err != nil {
		t.Fatalf("IndexFolder: %v", err)
	}
	if res.Indexed != 2 || res.Total != 2 || res.Errors != 0 {
		t.Errorf("result %+v", res)
	}

	hits, err := st.SearchContent(ctx, []string{"markdown"}, store.OpAnd, models.PrecisionHigh, nil, 10)
	if err != nil {
		t.Fatalf("SearchContent: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("hits %+v", hits)
	}

	scopes, err := st.Scopes(ctx)
	if err != nil {
		t.Fatalf("Scopes: %v", err)
	}
	if len(scopes) != 1 || scopes[0].Kind != models.ScopeKindFolder || !scopes[0].Active {
		t.Errorf("scopes %+v", scopes)
	}
}

func TestIndexFolderNotADirectory(t *testing.T) {
	c, _ := newTestCoordinator(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "file.txt", "x")

	if _, err := c.IndexFolder(context.Background(), path); err == nil {
		t.Error("expected error for non-directory")
	}
}

func TestIndexPathSingleFile(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "single.txt", "standalone document")

	res, err := c.IndexPath(ctx, path)
	if err != nil {
		t.Fatalf("IndexPath: %v", err)
	}
	if res.Indexed != 1 || res.Total != 1 {
		t.Errorf("result %+v", res)
	}

	scopes, _ := st.Scopes(ctx)
	if len(scopes) != 1 || scopes[0].Kind != models.ScopeKindFile {
		t.Errorf("scopes %+v", scopes)
	}
}

func TestIndexEmptyFileRecorded(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", "")

	res, err := c.IndexPath(ctx, path)
	if err != nil {
		t.Fatalf("IndexPath: %v", err)
	}
	if res.Indexed != 1 {
		t.Errorf("result %+v", res)
	}

	// Zero-fragment files count as indexed and are findable by title.
	statuses, _ := st.Status(ctx, []string{dir})
	if statuses[0].Status != models.IndexStatusIndexed || statuses[0].IndexedCount != 1 {
		t.Errorf("status %+v", statuses[0])
	}
	hits, _ := st.SearchTitles(ctx, []string{"empty"}, store.OpAnd, models.PrecisionHigh, nil, 10)
	if len(hits) != 1 {
		t.Errorf("title hits %+v", hits)
	}
}

func TestIndexFolderIsolatesParseFailures(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, dir, "good.txt", "valid document text")
	// Not a zip, so DOCX extraction fails.
	writeFile(t, dir, "broken.docx", "this is not a zip archive")

	res, err := c.IndexFolder(ctx, dir)
	if err != nil {
		t.Fatalf("IndexFolder: %v", err)
	}
	if res.Indexed != 1 || res.Total != 2 || res.Errors != 1 {
		t.Errorf("result %+v", res)
	}

	// The failed file is recorded with its error, not dropped.
	file, err := st.GetFile(ctx, filepath.Join(dir, "broken.docx"))
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if file.Status != models.FileStatusError || file.ErrorMessage == "" {
		t.Errorf("file %+v", file)
	}
}

func TestBatchIndexIncremental(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, dir, "one.txt", "first file")
	writeFile(t, dir, "two.txt", "second file")

	res, err := c.BatchIndex(ctx, []string{dir})
	if err != nil {
		t.Fatalf("BatchIndex: %v", err)
	}
	if res.PathsProcessed != 1 || res.NewFilesIndexed != 2 || res.TotalIndexed != 2 {
		t.Errorf("first batch %+v", res)
	}

	// Unchanged files are skipped on the next run.
	res, err = c.BatchIndex(ctx, []string{dir})
	if err != nil {
		t.Fatalf("BatchIndex: %v", err)
	}
	if res.NewFilesIndexed != 0 || res.TotalIndexed != 2 {
		t.Errorf("second batch %+v", res)
	}

	// A new file is picked up without reprocessing the others.
	writeFile(t, dir, "three.txt", "third file")
	res, err = c.BatchIndex(ctx, []string{dir})
	if err != nil {
		t.Fatalf("BatchIndex: %v", err)
	}
	if res.NewFilesIndexed != 1 || res.TotalIndexed != 3 {
		t.Errorf("third batch %+v", res)
	}

	hits, _ := st.SearchContent(ctx, []string{"third"}, store.OpAnd, models.PrecisionHigh, nil, 10)
	if len(hits) != 1 {
		t.Errorf("hits %+v", hits)
	}
}

func TestBatchIndexDetectsModification(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.txt", "original wording")

	if _, err := c.BatchIndex(ctx, []string{dir}); err != nil {
		t.Fatalf("BatchIndex: %v", err)
	}

	// Rewrite with a modification time beyond the tolerance window.
	if err := os.WriteFile(path, []byte("updated wording entirely"), 0600); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(5 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	res, err := c.BatchIndex(ctx, []string{dir})
	if err != nil {
		t.Fatalf("BatchIndex: %v", err)
	}
	if res.NewFilesIndexed != 1 {
		t.Errorf("result %+v", res)
	}

	hits, _ := st.SearchContent(ctx, []string{"updated"}, store.OpAnd, models.PrecisionHigh, nil, 10)
	if len(hits) != 1 {
		t.Errorf("updated content not searchable: %+v", hits)
	}
	hits, _ = st.SearchContent(ctx, []string{"original"}, store.OpAnd, models.PrecisionHigh, nil, 10)
	if len(hits) != 0 {
		t.Errorf("stale content still searchable: %+v", hits)
	}
}

func TestBatchIndexMissingPathSkipped(t *testing.T) {
	c, _ := newTestCoordinator(t)
	dir := t.TempDir()
	writeFile(t, dir, "real.txt", "content")

	res, err := c.BatchIndex(context.Background(), []string{"/nonexistent/nowhere", dir})
	if err != nil {
		t.Fatalf("BatchIndex: %v", err)
	}
	if res.PathsProcessed != 1 || res.NewFilesIndexed != 1 {
		t.Errorf("result %+v", res)
	}
}

func TestDeleteIndex(t *testing.T) {
	c, st := newTestCoordinator(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "gone.txt", "soon deleted")

	if _, err := c.IndexFolder(ctx, dir); err != nil {
		t.Fatalf("IndexFolder: %v", err)
	}
	n, err := c.DeleteIndex(ctx, dir)
	if err != nil {
		t.Fatalf("DeleteIndex: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}

	statuses, _ := st.Status(ctx, []string{dir})
	if statuses[0].Status != models.IndexStatusNotIndexed {
		t.Errorf("status %+v", statuses[0])
	}
}

func TestIsIndexing(t *testing.T) {
	c, _ := newTestCoordinator(t)

	done := c.begin("/data/docs")
	if !c.IsIndexing("/data/docs/sub/file.txt") {
		t.Error("descendant path not covered")
	}
	if !c.IsIndexing("/data") {
		t.Error("ancestor path not covered")
	}
	if c.IsIndexing("/other") {
		t.Error("unrelated path covered")
	}
	if c.IsIndexing("/data/docsother") {
		t.Error("sibling sharing a name prefix covered")
	}
	if c.IsIndexing("/da") {
		t.Error("name prefix of an ancestor covered")
	}
	if !c.IsIndexing("/data/docs") {
		t.Error("exact root not covered")
	}
	done()
	if c.IsIndexing("/data/docs") {
		t.Error("finished job still reported")
	}
}

func TestNeedsIndexing(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.txt", "12345")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	if !needsIndexing(nil, path) {
		t.Error("unknown file should need indexing")
	}

	current := &models.IndexedFile{Path: path, LastModified: info.ModTime().Unix(), Size: info.Size()}
	if needsIndexing(current, path) {
		t.Error("unchanged file should be skipped")
	}

	sizeChanged := &models.IndexedFile{Path: path, LastModified: info.ModTime().Unix(), Size: info.Size() + 1}
	if !needsIndexing(sizeChanged, path) {
		t.Error("size change not detected")
	}

	older := &models.IndexedFile{Path: path, LastModified: info.ModTime().Unix() - 10, Size: info.Size()}
	if !needsIndexing(older, path) {
		t.Error("mtime change not detected")
	}

	withinTolerance := &models.IndexedFile{Path: path, LastModified: info.ModTime().Unix() - 1, Size: info.Size()}
	if needsIndexing(withinTolerance, path) {
		t.Error("sub-tolerance mtime drift should be skipped")
	}
}

func TestContentHashStable(t *testing.T) {
	frags := []models.Fragment{{Text: "a"}, {Text: "b"}}
	if contentHash(frags) != contentHash(frags) {
		t.Error("hash not deterministic")
	}
	if contentHash(frags) == contentHash([]models.Fragment{{Text: "ab"}}) {
		t.Error("fragment boundaries should affect the hash")
	}
}
