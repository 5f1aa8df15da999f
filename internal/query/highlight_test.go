package query

import (
	"strings"
	"testing"
)

func TestSnippetWrapsMatch(t *testing.T) {
	got := Snippet("the quarterly revenue grew", []string{"revenue"}, 100)
	if got != "the quarterly <b>revenue</b> grew" {
		t.Errorf("got %q", got)
	}
}

func TestSnippetCaseInsensitive(t *testing.T) {
	got := Snippet("Revenue was flat", []string{"revenue"}, 100)
	if got != "<b>Revenue</b> was flat" {
		t.Errorf("got %q", got)
	}
}

func TestSnippetWindowing(t *testing.T) {
	text := strings.Repeat("x", 500) + " needle " + strings.Repeat("y", 500)
	got := Snippet(text, []string{"needle"}, 20)
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Errorf("missing ellipses: %q", got)
	}
	if !strings.Contains(got, "<b>needle</b>") {
		t.Errorf("match not highlighted: %q", got)
	}
	if len(got) > 120 {
		t.Errorf("window too large: %d chars", len(got))
	}
}

func TestSnippetNoMatchTruncates(t *testing.T) {
	text := strings.Repeat("word ", 100)
	got := Snippet(text, []string{"absent"}, 10)
	if strings.Contains(got, "<b>") {
		t.Errorf("unexpected marker in %q", got)
	}
	if len([]rune(got)) > 25 {
		t.Errorf("not truncated: %d runes", len([]rune(got)))
	}
}

func TestSnippetCollapsesWhitespace(t *testing.T) {
	got := Snippet("spread\n\nacross   lines", []string{"across"}, 100)
	if got != "spread <b>across</b> lines" {
		t.Errorf("got %q", got)
	}
}

func TestWrapTermsMultiple(t *testing.T) {
	got := wrapTerms("alpha beta alpha", []string{"alpha", "beta"})
	if got != "<b>alpha</b> <b>beta</b> <b>alpha</b>" {
		t.Errorf("got %q", got)
	}
}

func TestWrapTermsLongestFirst(t *testing.T) {
	// "sample" must not split the phrase highlight of "sample size".
	got := wrapTerms("a sample size test", []string{"sample", "sample size"})
	if !strings.Contains(got, "<b>sample size</b>") {
		t.Errorf("phrase split: %q", got)
	}
}

func TestWrapTermsEmptyTermIgnored(t *testing.T) {
	got := wrapTerms("plain text", []string{"", "  "})
	if got != "plain text" {
		t.Errorf("got %q", got)
	}
}
