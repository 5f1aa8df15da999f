package query

import (
	"strings"

	"github.com/hyperjump/mitsuke/pkg/utils"
)

// Highlight markers wrapped around matched terms in snippets.
const (
	markOpen  = "<b>"
	markClose = "</b>"
)

// Snippet extracts a window of text around the first matched term and wraps
// every term occurrence in highlight markers. The window spans roughly
// contextRunes on each side of the match and never splits a term. When no
// term occurs in text, the start of the text is returned unhighlighted.
func Snippet(text string, terms []string, contextRunes int) string {
	text = utils.CollapseSpace(text)
	runes := []rune(text)
	lower := strings.ToLower(text)

	matchStart, matchLen := -1, 0
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if i := strings.Index(lower, t); i >= 0 && (matchStart < 0 || i < matchStart) {
			matchStart, matchLen = i, len(t)
		}
	}
	if matchStart < 0 {
		return utils.TruncateRunes(text, contextRunes*2)
	}

	// Convert byte offsets to rune offsets for clean windowing.
	runeStart := len([]rune(text[:matchStart]))
	runeEnd := runeStart + len([]rune(text[matchStart:matchStart+matchLen]))

	start := runeStart - contextRunes
	if start < 0 {
		start = 0
	}
	end := runeEnd + contextRunes
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return wrapTerms(snippet, terms)
}

// wrapTerms wraps each case-insensitive occurrence of every term in highlight
// markers. Longer terms are applied first so sub-terms do not split them.
func wrapTerms(text string, terms []string) string {
	ordered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t != "" {
			ordered = append(ordered, t)
		}
	}
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if len(ordered[j]) > len(ordered[i]) {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	for _, t := range ordered {
		text = wrapTerm(text, t)
	}
	return text
}

func wrapTerm(text, term string) string {
	lowerTerm := strings.ToLower(term)
	var b strings.Builder
	for {
		i := strings.Index(strings.ToLower(text), lowerTerm)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		// Skip occurrences already inside a marker from a longer term.
		if strings.HasSuffix(text[:i], markOpen) {
			b.WriteString(text[:i+len(term)])
			text = text[i+len(term):]
			continue
		}
		b.WriteString(text[:i])
		b.WriteString(markOpen)
		b.WriteString(text[i : i+len(term)])
		b.WriteString(markClose)
		text = text[i+len(term):]
	}
}
