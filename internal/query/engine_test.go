package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/ai"
	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/store"
)

func testSearchConfig() *config.SearchConfig {
	return &config.SearchConfig{
		DefaultLimit:    50,
		MaxLimit:        200,
		TitleBoost:      3.0,
		ExpansionWeight: 0.6,
		SnippetContext:  100,
		TopKCandidates:  200,
	}
}

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "test.db"), filepath.Join(dir, "postings.bleve"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	aiClient := ai.NewClient(&config.AIConfig{TimeoutSeconds: 5, CacheSize: 16}, zap.NewNop())
	return NewEngine(st, aiClient, testSearchConfig(), zap.NewNop()), st
}

func indexDoc(t *testing.T, st *store.Store, path, content string, modified int64) {
	t.Helper()
	file := &models.IndexedFile{
		Path:         path,
		Title:        filepath.Base(path),
		ScopePath:    filepath.Dir(path),
		LastModified: modified,
		Size:         int64(len(content)),
		FileType:     strings.TrimPrefix(filepath.Ext(path), "."),
		Status:       models.FileStatusIndexed,
		IndexedAt:    time.Now(),
	}
	var frags []models.Fragment
	if content != "" {
		frags = []models.Fragment{{FilePath: path, Index: 0, Location: "Para:1", Text: content}}
	}
	if err := st.UpsertFile(context.Background(), file, frags); err != nil {
		t.Fatalf("UpsertFile %s: %v", path, err)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	e, st := newTestEngine(t)
	indexDoc(t, st, "/docs/a.txt", "some content", 1000)

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "   "})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalCount != 0 || len(resp.Results) != 0 {
		t.Errorf("response %+v", resp)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	e, _ := newTestEngine(t)

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "anything"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalCount != 0 || resp.HasMore {
		t.Errorf("response %+v", resp)
	}
}

func TestSearchAndSemantics(t *testing.T) {
	e, st := newTestEngine(t)
	indexDoc(t, st, "/docs/both.txt", "alpha beta gamma", 1000)
	indexDoc(t, st, "/docs/partial.txt", "alpha delta", 1000)

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "alpha beta"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalCount != 1 || resp.Results[0].FilePath != "/docs/both.txt" {
		t.Errorf("results %+v", resp.Results)
	}
}

func TestSearchOrSemantics(t *testing.T) {
	e, st := newTestEngine(t)
	indexDoc(t, st, "/docs/one.txt", "alpha only here", 1000)
	indexDoc(t, st, "/docs/two.txt", "beta only here", 1000)

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "alpha OR beta"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalCount != 2 {
		t.Errorf("results %+v", resp.Results)
	}
}

func TestSearchFilenameMatchRanksFirst(t *testing.T) {
	e, st := newTestEngine(t)
	indexDoc(t, st, "/docs/revenue.txt", "nothing relevant inside", 1000)
	indexDoc(t, st, "/docs/notes.txt", "revenue is mentioned once here", 1000)

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "revenue"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalCount != 2 {
		t.Fatalf("results %+v", resp.Results)
	}
	first := resp.Results[0]
	if first.FilePath != "/docs/revenue.txt" || first.MatchType != models.MatchTypeFilename {
		t.Errorf("first result %+v", first)
	}
	if resp.Results[1].MatchType != models.MatchTypeContent {
		t.Errorf("second result %+v", resp.Results[1])
	}
}

func TestSearchHighlightAndLocation(t *testing.T) {
	e, st := newTestEngine(t)
	indexDoc(t, st, "/docs/a.txt", "the annual revenue report", 1000)

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "revenue"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results %+v", resp.Results)
	}
	r := resp.Results[0]
	if r.LocationInfo != "Para:1" {
		t.Errorf("location %q", r.LocationInfo)
	}
	if !strings.HasPrefix(r.Highlight, "[Para:1] ") {
		t.Errorf("missing location marker: %q", r.Highlight)
	}
	if !strings.Contains(r.Highlight, "<b>revenue</b>") {
		t.Errorf("missing highlight: %q", r.Highlight)
	}
}

func TestSearchTitleOnlyMatchHighlightsTitle(t *testing.T) {
	e, st := newTestEngine(t)
	// Empty extraction: only the title-carrying posting exists.
	indexDoc(t, st, "/docs/empty_budget.txt", "", 1000)

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "budget"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results %+v", resp.Results)
	}
	r := resp.Results[0]
	if r.MatchType != models.MatchTypeFilename || r.LocationInfo != "" {
		t.Errorf("result %+v", r)
	}
	if !strings.Contains(r.Highlight, "<b>budget</b>") {
		t.Errorf("highlight %q", r.Highlight)
	}
}

func TestSearchPagination(t *testing.T) {
	e, st := newTestEngine(t)
	paths := []string{"/d/a.txt", "/d/b.txt", "/d/c.txt", "/d/d.txt", "/d/e.txt"}
	for i, p := range paths {
		indexDoc(t, st, p, "common term document", int64(1000+i))
	}

	ctx := context.Background()
	first, err := e.Search(ctx, &models.SearchQuery{Query: "common", Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if first.TotalCount != 5 || len(first.Results) != 2 || !first.HasMore {
		t.Errorf("first page %+v", first)
	}

	second, err := e.Search(ctx, &models.SearchQuery{Query: "common", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if second.TotalCount != 5 || len(second.Results) != 2 || !second.HasMore {
		t.Errorf("second page %+v", second)
	}

	last, err := e.Search(ctx, &models.SearchQuery{Query: "common", Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if last.TotalCount != 5 || len(last.Results) != 1 || last.HasMore {
		t.Errorf("last page %+v", last)
	}

	seen := map[string]bool{}
	for _, page := range [][]*models.SearchResult{first.Results, second.Results, last.Results} {
		for _, r := range page {
			if seen[r.FilePath] {
				t.Errorf("path %s returned twice", r.FilePath)
			}
			seen[r.FilePath] = true
		}
	}
	if len(seen) != 5 {
		t.Errorf("pages cover %d paths, want 5", len(seen))
	}
}

func TestSearchDeterministicOrder(t *testing.T) {
	e, st := newTestEngine(t)
	// Identical content and mtime, so ordering falls back to path.
	indexDoc(t, st, "/d/zeta.txt", "tiebreak term", 1000)
	indexDoc(t, st, "/d/alpha.txt", "tiebreak term", 1000)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		resp, err := e.Search(ctx, &models.SearchQuery{Query: "tiebreak"})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(resp.Results) != 2 || resp.Results[0].FilePath != "/d/alpha.txt" {
			t.Errorf("run %d order %+v", i, resp.Results)
		}
	}
}

func TestSearchRecencyTiebreak(t *testing.T) {
	e, st := newTestEngine(t)
	indexDoc(t, st, "/d/old.txt", "recency term", 1000)
	indexDoc(t, st, "/d/new.txt", "recency term", 2000)

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "recency"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].FilePath != "/d/new.txt" {
		t.Errorf("order %+v", resp.Results)
	}
}

func TestSearchPathsFilter(t *testing.T) {
	e, st := newTestEngine(t)
	indexDoc(t, st, "/projects/x/doc.txt", "scoped term", 1000)
	indexDoc(t, st, "/projects/y/doc.txt", "scoped term", 1000)

	resp, err := e.Search(context.Background(), &models.SearchQuery{
		Query: "scoped",
		Paths: []string{"/projects/x"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalCount != 1 || resp.Results[0].FilePath != "/projects/x/doc.txt" {
		t.Errorf("results %+v", resp.Results)
	}
}

func TestSearchAndAcrossFragments(t *testing.T) {
	e, st := newTestEngine(t)

	// A spreadsheet indexes one fragment per cell; both terms of an AND
	// query must be found even when they sit in different cells.
	path := "/docs/cells.xlsx"
	file := &models.IndexedFile{
		Path:         path,
		Title:        filepath.Base(path),
		ScopePath:    filepath.Dir(path),
		LastModified: 1000,
		Size:         100,
		FileType:     "xlsx",
		Status:       models.FileStatusIndexed,
		IndexedAt:    time.Now(),
	}
	frags := []models.Fragment{
		{FilePath: path, Index: 0, Location: "Sheet:Sheet1, Row:1, Col:1", Text: "alpha in cell one"},
		{FilePath: path, Index: 1, Location: "Sheet:Sheet1, Row:2, Col:1", Text: "beta in cell two"},
	}
	if err := st.UpsertFile(context.Background(), file, frags); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	indexDoc(t, st, "/docs/other.txt", "alpha without the second term", 1000)

	resp, err := e.Search(context.Background(), &models.SearchQuery{
		Query:     "alpha beta",
		Precision: models.PrecisionHigh,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalCount != 1 || resp.Results[0].FilePath != path {
		t.Fatalf("results %+v, want only %s", resp.Results, path)
	}
	r := resp.Results[0]
	if r.LocationInfo == "" || !strings.Contains(r.Highlight, "<b>") {
		t.Errorf("result %+v", r)
	}
}

func TestSearchRelativePathFilter(t *testing.T) {
	e, st := newTestEngine(t)
	dir := t.TempDir()
	inside := filepath.Join(dir, "x", "doc.txt")
	outside := filepath.Join(dir, "y", "doc.txt")
	indexDoc(t, st, inside, "scoped term", 1000)
	indexDoc(t, st, outside, "scoped term", 1000)

	// Indexed paths are absolute; a relative filter resolves against the
	// working directory.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	resp, err := e.Search(context.Background(), &models.SearchQuery{
		Query: "scoped",
		Paths: []string{"x"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalCount != 1 || resp.Results[0].FilePath != inside {
		t.Errorf("relative filter results %+v", resp.Results)
	}

	// Home-relative filters resolve against $HOME.
	t.Setenv("HOME", dir)
	resp, err = e.Search(context.Background(), &models.SearchQuery{
		Query: "scoped",
		Paths: []string{"~/y"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalCount != 1 || resp.Results[0].FilePath != outside {
		t.Errorf("home filter results %+v", resp.Results)
	}
}

func TestSearchExpansion(t *testing.T) {
	e, st := newTestEngine(t)
	indexDoc(t, st, "/docs/direct.txt", "widget assembly manual", 1000)
	indexDoc(t, st, "/docs/synonym.txt", "gadget maintenance guide", 1000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": `["gadget"]`}},
			},
		})
	}))
	defer srv.Close()

	resp, err := e.Search(context.Background(), &models.SearchQuery{
		Query:  "widget",
		Expand: true,
		AI:     &models.AIConfig{BaseURL: srv.URL, APIKey: "k"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalCount != 2 {
		t.Fatalf("results %+v", resp.Results)
	}

	byPath := map[string]*models.SearchResult{}
	for _, r := range resp.Results {
		byPath[r.FilePath] = r
	}
	direct := byPath["/docs/direct.txt"]
	if direct == nil || direct.IsExpanded {
		t.Errorf("direct result %+v", direct)
	}
	exp := byPath["/docs/synonym.txt"]
	if exp == nil || !exp.IsExpanded || exp.SourceQuery != "widget" {
		t.Errorf("expanded result %+v", exp)
	}
	if exp != nil && !strings.Contains(exp.Highlight, "<b>gadget</b>") {
		t.Errorf("expansion term not highlighted: %q", exp.Highlight)
	}
	// Direct matches outrank expansion-only matches.
	if resp.Results[0].FilePath != "/docs/direct.txt" {
		t.Errorf("order %+v", resp.Results)
	}
}

func TestSearchAIFailureFallsBack(t *testing.T) {
	e, st := newTestEngine(t)
	indexDoc(t, st, "/docs/a.txt", "resilient content", 1000)

	resp, err := e.Search(context.Background(), &models.SearchQuery{
		Query:  "resilient",
		Expand: true,
		AI:     &models.AIConfig{BaseURL: "http://127.0.0.1:1", APIKey: "k"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalCount != 1 || resp.Results[0].IsExpanded {
		t.Errorf("results %+v", resp.Results)
	}
}

func TestSearchLimitClamped(t *testing.T) {
	e, st := newTestEngine(t)
	indexDoc(t, st, "/docs/a.txt", "clamp test", 1000)

	q := &models.SearchQuery{Query: "clamp", Limit: 100000}
	if _, err := e.Search(context.Background(), q); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if q.Limit != testSearchConfig().MaxLimit {
		t.Errorf("limit = %d, want %d", q.Limit, testSearchConfig().MaxLimit)
	}
}
