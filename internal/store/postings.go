package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/pkg/utils"
)

// Posting fields.
const (
	fieldPath    = "path"
	fieldTitle   = "title"
	fieldContent = "content"
)

// Boolean operators joining term groups in a search.
const (
	OpAnd = "AND"
	OpOr  = "OR"
)

// postingDoc is the per-fragment document indexed into Bleve. Title is carried
// on every fragment of a file so filename queries hit regardless of which
// fragment scores; path is a keyword field so prefix filters see the raw path.
type postingDoc struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// openPostings creates or opens the Bleve postings index at path.
// Standard analyzer (lowercase + tokenize, no stemming) so queries match the
// exact word; stemming analyzers fold distinct terms together and break
// high-precision matching.
func openPostings(path string) (bleve.Index, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open postings index: %w", openErr)
		}
		return index, nil
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldTitle, textField)
	docMapping.AddFieldMappingsAt(fieldContent, textField)

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt(fieldPath, pathField)

	im.DefaultMapping = docMapping

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create postings index: %w", err)
	}
	return index, nil
}

// swapPostings replaces the posting documents for a file. prevDocs is the
// previous posting count; deleting an ID that does not exist is a no-op, so
// over-estimating is safe. A file with zero fragments still gets one posting
// document (title only) so filename search and the indexed invariant hold.
func (s *Store) swapPostings(file *models.IndexedFile, frags []models.Fragment, prevDocs int) error {
	if prevDocs < 1 {
		prevDocs = 1
	}
	batch := s.postings.NewBatch()
	for i := 0; i < prevDocs; i++ {
		batch.Delete(fragmentID(file.Path, i))
	}

	title := utils.NormalizeTitle(file.Title)
	if file.Status == models.FileStatusIndexed {
		if len(frags) == 0 {
			if err := batch.Index(fragmentID(file.Path, 0), postingDoc{Path: file.Path, Title: title}); err != nil {
				return fmt.Errorf("index empty posting: %w", err)
			}
		}
		for i, f := range frags {
			doc := postingDoc{Path: file.Path, Title: title, Content: f.Text}
			if err := batch.Index(fragmentID(file.Path, i), doc); err != nil {
				return fmt.Errorf("index posting %d: %w", i, err)
			}
		}
	}
	if err := s.postings.Batch(batch); err != nil {
		return fmt.Errorf("apply posting batch: %w", err)
	}
	return nil
}

// FragmentHit is a posting match for one fragment of a file.
type FragmentHit struct {
	Path      string
	FragIndex int
	Score     float64
}

// SearchContent retrieves fragment hits for term groups over fragment content.
// Groups combine per op (AND intersects, OR unions); precision tunes term
// matching. pathPrefixes, when non-empty, restricts hits to those path roots.
func (s *Store) SearchContent(ctx context.Context, terms []string, op, precision string, pathPrefixes []string, size int) ([]FragmentHit, error) {
	return s.searchField(ctx, fieldContent, terms, op, precision, pathPrefixes, size)
}

// SearchTitles retrieves fragment hits for term groups over file titles.
func (s *Store) SearchTitles(ctx context.Context, terms []string, op, precision string, pathPrefixes []string, size int) ([]FragmentHit, error) {
	return s.searchField(ctx, fieldTitle, terms, op, precision, pathPrefixes, size)
}

func (s *Store) searchField(ctx context.Context, field string, terms []string, op, precision string, pathPrefixes []string, size int) ([]FragmentHit, error) {
	if len(terms) == 0 || size <= 0 {
		return nil, nil
	}
	groups := make([]blevequery.Query, 0, len(terms))
	for _, t := range terms {
		q := termQuery(t, field, precision)
		if q == nil {
			continue
		}
		groups = append(groups, q)
	}
	if len(groups) == 0 {
		return nil, nil
	}
	if len(groups) > 1 && op == OpAnd {
		return s.searchIntersect(ctx, groups, pathPrefixes, size)
	}

	var q blevequery.Query
	if len(groups) == 1 {
		q = groups[0]
	} else {
		q = bleve.NewDisjunctionQuery(groups...)
	}
	return s.runQuery(ctx, q, pathPrefixes, size)
}

// searchIntersect evaluates an AND query by running each term group on its
// own and intersecting the matched files. Posting documents are per fragment,
// so a conjunction over them would demand every term inside one fragment; a
// file whose terms sit in different cells or paragraphs must still match.
// Per file the scores of each term's best fragment are summed, and the
// highest-scoring fragment overall is kept for highlighting.
func (s *Store) searchIntersect(ctx context.Context, groups []blevequery.Query, pathPrefixes []string, size int) ([]FragmentHit, error) {
	type agg struct {
		score     float64
		bestFrag  int
		bestScore float64
	}
	byPath := make(map[string]*agg)
	for i, g := range groups {
		hits, err := s.runQuery(ctx, g, pathPrefixes, size)
		if err != nil {
			return nil, err
		}
		// Hits arrive score-descending, so the first hit per file is that
		// term's best fragment.
		best := make(map[string]FragmentHit, len(hits))
		for _, h := range hits {
			if _, ok := best[h.Path]; !ok {
				best[h.Path] = h
			}
		}
		if i == 0 {
			for p, h := range best {
				byPath[p] = &agg{score: h.Score, bestFrag: h.FragIndex, bestScore: h.Score}
			}
			continue
		}
		for p, a := range byPath {
			h, ok := best[p]
			if !ok {
				delete(byPath, p)
				continue
			}
			a.score += h.Score
			if h.Score > a.bestScore {
				a.bestScore = h.Score
				a.bestFrag = h.FragIndex
			}
		}
		if len(byPath) == 0 {
			return nil, nil
		}
	}

	out := make([]FragmentHit, 0, len(byPath))
	for p, a := range byPath {
		out = append(out, FragmentHit{Path: p, FragIndex: a.bestFrag, Score: a.score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > size {
		out = out[:size]
	}
	return out, nil
}

func (s *Store) runQuery(ctx context.Context, q blevequery.Query, pathPrefixes []string, size int) ([]FragmentHit, error) {
	if len(pathPrefixes) > 0 {
		scoped := make([]blevequery.Query, 0, len(pathPrefixes))
		for _, p := range pathPrefixes {
			pq := bleve.NewPrefixQuery(p)
			pq.SetField(fieldPath)
			scoped = append(scoped, pq)
		}
		q = bleve.NewConjunctionQuery(q, bleve.NewDisjunctionQuery(scoped...))
	}

	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.Fields = []string{fieldPath}
	res, err := s.postings.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("postings search failed: %w", err)
	}

	hits := make([]FragmentHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		path, idx := splitFragmentID(hit.ID)
		if p, ok := hit.Fields[fieldPath].(string); ok && p != "" {
			path = p
		}
		hits = append(hits, FragmentHit{Path: path, FragIndex: idx, Score: hit.Score})
	}
	return hits, nil
}

// termQuery builds the per-term query for a precision level. A term containing
// spaces is a phrase and always matches as one.
//   - high: exact word/phrase match only.
//   - medium: word match plus prefix match (a partially typed word still hits).
//   - low: fuzzy word match, edit distance 1.
func termQuery(term, field, precision string) blevequery.Query {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	if strings.ContainsAny(term, " \t") {
		pq := bleve.NewMatchPhraseQuery(term)
		pq.SetField(field)
		return pq
	}
	switch precision {
	case models.PrecisionHigh:
		mq := bleve.NewMatchQuery(term)
		mq.SetField(field)
		return mq
	case models.PrecisionLow:
		fq := bleve.NewFuzzyQuery(strings.ToLower(term))
		fq.SetFuzziness(1)
		fq.SetField(field)
		mq := bleve.NewMatchQuery(term)
		mq.SetField(field)
		return bleve.NewDisjunctionQuery(mq, fq)
	default: // medium
		mq := bleve.NewMatchQuery(term)
		mq.SetField(field)
		pq := bleve.NewPrefixQuery(strings.ToLower(term))
		pq.SetField(field)
		return bleve.NewDisjunctionQuery(mq, pq)
	}
}

// splitFragmentID parses a posting document ID back into path and fragment
// index. The separator is the last '#' so paths containing '#' stay intact.
func splitFragmentID(id string) (string, int) {
	i := strings.LastIndex(id, "#")
	if i < 0 {
		return id, 0
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return id, 0
	}
	return id[:i], n
}

// ContentTerms returns indexed content terms with the given prefix from the
// postings term dictionary, for autocomplete.
func (s *Store) ContentTerms(prefix string, limit int) ([]string, error) {
	dict, err := s.postings.FieldDictPrefix(fieldContent, []byte(strings.ToLower(prefix)))
	if err != nil {
		return nil, fmt.Errorf("open term dictionary: %w", err)
	}
	defer dict.Close()

	var terms []string
	for len(terms) < limit {
		entry, err := dict.Next()
		if err != nil || entry == nil {
			break
		}
		terms = append(terms, entry.Term)
	}
	return terms, nil
}
