// Package suggest derives autocomplete candidates and recency listings from
// the index.
package suggest

import (
	"context"
	"strings"

	"github.com/bbalet/stopwords"
	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/store"
)

const (
	minQueryLen      = 2
	maxSuggestions   = 8
	maxFilenameHits  = 5
	maxContentTerms  = 10
	previewRuneLimit = 80
)

// Service answers suggestion and recent-file queries against the store.
type Service struct {
	store  *store.Store
	logger *zap.Logger
}

func NewService(st *store.Store, logger *zap.Logger) *Service {
	return &Service{store: st, logger: logger}
}

// Suggestions returns up to 8 candidates for a prefix: indexed titles
// containing the query first, then content terms completing it. Queries
// shorter than two characters yield an empty slice.
func (s *Service) Suggestions(ctx context.Context, q string) ([]models.Suggestion, error) {
	q = strings.TrimSpace(q)
	out := []models.Suggestion{}
	if len([]rune(q)) < minQueryLen {
		return out, nil
	}

	titles, err := s.store.TitlesMatching(ctx, q, maxFilenameHits)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, t := range titles {
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, models.Suggestion{
			Text:   t,
			Type:   models.SuggestionTypeFilename,
			Source: t,
		})
	}

	terms, err := s.store.ContentTerms(strings.ToLower(q), maxContentTerms)
	if err != nil {
		return nil, err
	}
	for _, term := range terms {
		if len(out) >= maxSuggestions {
			break
		}
		if seen[term] || isStopword(term) {
			continue
		}
		seen[term] = true
		sg := models.Suggestion{
			Text:   term,
			Type:   models.SuggestionTypeContent,
			Source: term,
		}
		if prev := s.preview(ctx, term); prev != "" {
			sg.Preview = prev
		}
		out = append(out, sg)
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out, nil
}

// RecentFiles lists the most recently modified indexed files.
func (s *Service) RecentFiles(ctx context.Context, limit int) ([]models.RecentFile, error) {
	return s.store.RecentFiles(ctx, limit)
}

// preview fetches a short excerpt of a fragment containing the term. Best
// effort; an empty string means no preview.
func (s *Service) preview(ctx context.Context, term string) string {
	hits, err := s.store.SearchContent(ctx, []string{term}, store.OpOr, models.PrecisionHigh, nil, 1)
	if err != nil || len(hits) == 0 {
		return ""
	}
	frag, err := s.store.GetFragment(ctx, hits[0].Path, hits[0].FragIndex)
	if err != nil {
		s.logger.Debug("suggestion preview unavailable", zap.String("path", hits[0].Path), zap.Error(err))
		return ""
	}
	text := strings.Join(strings.Fields(frag.Text), " ")
	runes := []rune(text)
	if len(runes) > previewRuneLimit {
		text = string(runes[:previewRuneLimit]) + "..."
	}
	return text
}

// isStopword reports whether the term carries no search value on its own.
func isStopword(term string) bool {
	return strings.TrimSpace(stopwords.CleanString(term, "en", false)) == ""
}
