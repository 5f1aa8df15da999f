package utils

import (
	"strings"
	"unicode/utf8"
)

// SanitizeUTF8 returns s with invalid UTF-8 sequences replaced by the
// replacement character.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

// NormalizeTitle returns a filename with underscores and dots replaced by
// spaces so that word queries match titles like "quarterly_sales_report.xlsx".
// The standard analyzer splits on neither: underscore is a word character and
// a dot between letters glues them into one token (as in "example.com").
func NormalizeTitle(title string) string {
	return strings.NewReplacer("_", " ", ".", " ").Replace(title)
}

// TruncateRunes shortens s to at most n runes, appending "..." when truncated.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// CollapseSpace trims s and folds runs of whitespace into single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
