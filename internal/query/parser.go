// Package query implements the search pipeline: parse, expand, retrieve,
// rank, highlight, paginate. The engine is stateless per call; the index
// store is its only data source.
package query

import (
	"strings"

	"github.com/hyperjump/mitsuke/internal/store"
)

// ParsedQuery is a raw query reduced to an operator and term groups. A term
// containing spaces matches as a phrase.
type ParsedQuery struct {
	Operator string
	Terms    []string
}

// Empty reports whether the query carries no usable terms.
func (p ParsedQuery) Empty() bool {
	return len(p.Terms) == 0
}

// Parse tokenizes a raw query into required/optional term groups honoring
// explicit AND/OR operators (case-insensitive, standalone words). Quoted
// phrases are single tokens. AND takes priority when both appear.
//
// Without an operator, unquoted words are all required ("foo bar" means
// foo AND bar). With an operator, a multiword side is kept as one phrase
// ("foo bar OR baz" unions the phrase "foo bar" with "baz").
func Parse(raw string) ParsedQuery {
	tokens := tokenize(raw)
	if len(tokens) == 0 {
		return ParsedQuery{Operator: store.OpAnd}
	}

	hasAnd, hasOr := false, false
	for _, t := range tokens {
		if t.quoted {
			continue
		}
		switch strings.ToUpper(t.text) {
		case store.OpAnd:
			hasAnd = true
		case store.OpOr:
			hasOr = true
		}
	}

	switch {
	case hasAnd:
		return ParsedQuery{Operator: store.OpAnd, Terms: splitOnOperator(tokens, store.OpAnd)}
	case hasOr:
		return ParsedQuery{Operator: store.OpOr, Terms: splitOnOperator(tokens, store.OpOr)}
	default:
		// All words required; quoted tokens stay as phrases.
		terms := make([]string, 0, len(tokens))
		for _, t := range tokens {
			terms = append(terms, t.text)
		}
		return ParsedQuery{Operator: store.OpAnd, Terms: terms}
	}
}

type token struct {
	text   string
	quoted bool
}

// tokenize splits raw on whitespace, keeping double-quoted runs as single
// tokens (without the quotes). An unterminated quote extends to the end.
func tokenize(raw string) []token {
	var tokens []token
	var buf strings.Builder
	inQuote := false
	flush := func(quoted bool) {
		if buf.Len() > 0 {
			tokens = append(tokens, token{text: buf.String(), quoted: quoted})
			buf.Reset()
		}
	}
	for _, r := range raw {
		switch {
		case r == '"':
			if inQuote {
				flush(true)
			} else {
				flush(false)
			}
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush(false)
		default:
			buf.WriteRune(r)
		}
	}
	flush(inQuote)
	return tokens
}

// splitOnOperator groups tokens between operator occurrences; each group
// becomes one term (multiword groups join into a phrase).
func splitOnOperator(tokens []token, op string) []string {
	var terms []string
	var group []string
	flush := func() {
		if len(group) > 0 {
			terms = append(terms, strings.Join(group, " "))
			group = group[:0]
		}
	}
	for _, t := range tokens {
		if !t.quoted && strings.EqualFold(t.text, op) {
			flush()
			continue
		}
		group = append(group, t.text)
	}
	flush()
	return terms
}
