package query

import (
	"reflect"
	"testing"

	"github.com/hyperjump/mitsuke/internal/store"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		op    string
		terms []string
	}{
		{"empty", "", store.OpAnd, nil},
		{"whitespace only", "   \t ", store.OpAnd, nil},
		{"single word", "revenue", store.OpAnd, []string{"revenue"}},
		{"implicit and", "quarterly revenue", store.OpAnd, []string{"quarterly", "revenue"}},
		{"explicit and", "alpha AND beta", store.OpAnd, []string{"alpha", "beta"}},
		{"lowercase and", "alpha and beta", store.OpAnd, []string{"alpha", "beta"}},
		{"explicit or", "alpha OR beta", store.OpOr, []string{"alpha", "beta"}},
		{"and beats or", "a AND b OR c", store.OpAnd, []string{"a", "b OR c"}},
		{"multiword group becomes phrase", "sample size OR cohort", store.OpOr, []string{"sample size", "cohort"}},
		{"quoted phrase", `"sample size" analysis`, store.OpAnd, []string{"sample size", "analysis"}},
		{"quoted operator is a term", `alpha "OR" beta`, store.OpAnd, []string{"alpha", "OR", "beta"}},
		{"unterminated quote", `"dangling phrase`, store.OpAnd, []string{"dangling phrase"}},
		{"leading operator ignored", "OR alpha", store.OpOr, []string{"alpha"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if got.Operator != tt.op {
				t.Errorf("operator = %q, want %q", got.Operator, tt.op)
			}
			if !reflect.DeepEqual(got.Terms, tt.terms) {
				t.Errorf("terms = %#v, want %#v", got.Terms, tt.terms)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if !Parse("").Empty() {
		t.Error("empty input should parse to an empty query")
	}
	if Parse("word").Empty() {
		t.Error("non-empty input should not be empty")
	}
}
