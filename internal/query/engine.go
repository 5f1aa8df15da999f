package query

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/ai"
	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/store"
)

// Engine runs the search pipeline over the index store. State-free per call.
type Engine struct {
	store  *store.Store
	ai     *ai.Client
	cfg    *config.SearchConfig
	logger *zap.Logger
}

// NewEngine creates a search engine. The AI client may be nil; expansion is
// then never attempted.
func NewEngine(st *store.Store, aiClient *ai.Client, cfg *config.SearchConfig, logger *zap.Logger) *Engine {
	return &Engine{store: st, ai: aiClient, cfg: cfg, logger: logger}
}

// candidate accumulates per-file evidence before ranking.
type candidate struct {
	path       string
	score      float64
	titleHit   bool
	bestFrag   int
	hasFrag    bool
	isExpanded bool
	expTerms   []string
	modTime    int64
}

// Search runs parse, optional expansion, retrieval, ranking, highlighting,
// and pagination. An empty query or an empty index yields an empty result
// set, not an error. Expansion failures degrade silently to the unexpanded
// query; store corruption is fatal for the query and carries a rebuild hint.
func (e *Engine) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	q.Normalize(e.cfg.DefaultLimit, e.cfg.MaxLimit)

	resp := &models.SearchResponse{Results: []*models.SearchResult{}, Query: q.Query}
	q.Paths = normalizePaths(q.Paths)
	parsed := Parse(q.Query)
	if parsed.Empty() {
		resp.QueryTime = time.Since(start).Milliseconds()
		return resp, nil
	}

	// Retrieve enough candidates to page into.
	topK := e.cfg.TopKCandidates
	if need := q.Offset + q.Limit + 1; need > topK {
		topK = need
	}

	contentHits, err := e.store.SearchContent(ctx, parsed.Terms, parsed.Operator, q.Precision, q.Paths, topK)
	if err != nil {
		return nil, fmt.Errorf("content retrieval: %w", err)
	}
	titleHits, err := e.store.SearchTitles(ctx, parsed.Terms, parsed.Operator, q.Precision, q.Paths, topK)
	if err != nil {
		return nil, fmt.Errorf("title retrieval: %w", err)
	}

	byPath := make(map[string]*candidate)
	get := func(path string) *candidate {
		c, ok := byPath[path]
		if !ok {
			c = &candidate{path: path}
			byPath[path] = c
		}
		return c
	}

	for _, h := range contentHits {
		c := get(h.Path)
		// Hits arrive score-descending, so the first fragment seen per file
		// is the strongest one and becomes the highlight source.
		if !c.hasFrag {
			c.bestFrag = h.FragIndex
			c.hasFrag = true
		}
		if h.Score > c.score {
			c.score = h.Score
		}
	}
	// Filename matches score additively on top of content, boosted so they
	// rank above pure content matches.
	for _, h := range titleHits {
		c := get(h.Path)
		c.titleHit = true
		c.score += h.Score * e.cfg.TitleBoost
	}

	// Optional AI expansion: each synonym is an extra optional term. Files
	// reached only through a synonym are tagged as expanded; failures never
	// fail the search.
	for _, term := range e.expandTerms(ctx, q) {
		hits, err := e.store.SearchContent(ctx, []string{term}, store.OpOr, q.Precision, q.Paths, topK)
		if err != nil {
			continue
		}
		for _, h := range hits {
			c, ok := byPath[h.Path]
			if !ok {
				c = get(h.Path)
				c.isExpanded = true
				c.bestFrag = h.FragIndex
				c.hasFrag = true
			}
			if c.isExpanded {
				c.expTerms = append(c.expTerms, term)
			}
			c.score += h.Score * e.cfg.ExpansionWeight
		}
	}

	if len(byPath) == 0 {
		resp.QueryTime = time.Since(start).Milliseconds()
		return resp, nil
	}

	ranked := make([]*candidate, 0, len(byPath))
	paths := make([]string, 0, len(byPath))
	for p, c := range byPath {
		ranked = append(ranked, c)
		paths = append(paths, p)
	}
	modTimes, err := e.store.ModTimes(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("load modification times: %w", err)
	}
	for _, c := range ranked {
		c.modTime = modTimes[c.path]
	}

	// Deterministic ordering: score desc, then most recent, then path.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].modTime != ranked[j].modTime {
			return ranked[i].modTime > ranked[j].modTime
		}
		return ranked[i].path < ranked[j].path
	})

	resp.TotalCount = len(ranked)
	resp.HasMore = resp.TotalCount > q.Offset+q.Limit
	lo, hi := q.Offset, q.Offset+q.Limit
	if lo > len(ranked) {
		lo = len(ranked)
	}
	if hi > len(ranked) {
		hi = len(ranked)
	}

	highlightTerms := parsed.Terms
	for _, c := range ranked[lo:hi] {
		r, err := e.buildResult(ctx, c, q, highlightTerms)
		if err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, r)
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp, nil
}

// normalizePaths resolves filter paths to absolute form. Indexed paths are
// stored absolute, so a relative or home-relative filter would never match a
// posting's path prefix.
func normalizePaths(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				p = filepath.Join(home, p[2:])
			}
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

// expandTerms returns AI synonyms for the query, or nil when expansion is
// disabled, unconfigured, or failing.
func (e *Engine) expandTerms(ctx context.Context, q *models.SearchQuery) []string {
	if !q.Expand || e.ai == nil || !q.AI.Configured() {
		return nil
	}
	terms, err := e.ai.Expand(ctx, q.Query, "", q.AI)
	if err != nil {
		e.logger.Debug("expansion unavailable, searching unexpanded", zap.Error(err))
		return nil
	}
	return terms
}

// buildResult assembles one page entry: title, highlighted snippet with its
// location marker, match type, and expansion provenance.
func (e *Engine) buildResult(ctx context.Context, c *candidate, q *models.SearchQuery, terms []string) (*models.SearchResult, error) {
	file, err := e.store.GetFile(ctx, c.path)
	if err != nil {
		// A posting pointing at a missing file record is index corruption.
		return nil, fmt.Errorf("result %s: %w", c.path, store.ErrCorrupt)
	}

	r := &models.SearchResult{
		FilePath:  c.path,
		Title:     file.Title,
		Rank:      c.score,
		MatchType: models.MatchTypeContent,
	}
	if c.titleHit {
		r.MatchType = models.MatchTypeFilename
	}
	if c.isExpanded {
		r.IsExpanded = true
		r.SourceQuery = q.Query
		terms = append(terms[:len(terms):len(terms)], c.expTerms...)
	}

	if c.hasFrag {
		frag, err := e.store.GetFragment(ctx, c.path, c.bestFrag)
		if err != nil {
			return nil, err
		}
		r.LocationInfo = frag.Location
		snippet := Snippet(frag.Text, terms, e.cfg.SnippetContext)
		if frag.Location != "" {
			snippet = "[" + frag.Location + "] " + snippet
		}
		r.Highlight = snippet
	} else {
		// Filename-only match (possibly an empty extraction).
		r.Highlight = wrapTerms(file.Title, terms)
	}
	return r, nil
}
