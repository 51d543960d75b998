package errors

import (
	"fmt"
	"strings"
	"testing"

	"mercator-hq/triage/pkg/rules/ast"
)

func TestErrorList_HasCode(t *testing.T) {
	list := NewErrorList()
	if list.ToError() != nil {
		t.Fatal("empty list converted to a non-nil error")
	}

	loc := ast.Location{File: "verdict.yaml", Line: 3, Column: 1}
	list.AddCoded(ErrorTypeSemantic, CodeMissingFallback, "no fallback", loc, "Add 'otherwise'")
	list.AddError(ErrorTypeStructural, "bad name", loc)

	err := fmt.Errorf("loading stages: %w", list.ToError())
	if !HasCode(err, CodeMissingFallback) {
		t.Error("HasCode did not see through wrapping")
	}
	if HasCode(err, CodeDuplicateSignal) {
		t.Error("HasCode reported a code that is not present")
	}
	if got := len(list.ByType(ErrorTypeStructural)); got != 1 {
		t.Errorf("ByType(structural) = %d errors, want 1", got)
	}

	msg := list.Error()
	for _, want := range []string{"Found 2 error(s)", "[semantic:MissingFallback]", "verdict.yaml:3:1", "suggestion: Add 'otherwise'"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() missing %q:\n%s", want, msg)
		}
	}
}

func TestExtractContext(t *testing.T) {
	src := []byte("name: s\norder: 1\nkind: bogus\nbounds: {}\n")
	got := ExtractContext(src, ast.Location{File: "s.yaml", Line: 3, Column: 7}, 1)

	want := "   2 | order: 1\n" +
		"-> 3 | kind: bogus\n" +
		"     |       ^\n" +
		"   4 | bounds: {}\n"
	if got != want {
		t.Errorf("ExtractContext() =\n%q\nwant\n%q", got, want)
	}

	if ExtractContext(src, ast.Location{File: "s.yaml", Line: 40}, 1) != "" {
		t.Error("ExtractContext() rendered a line outside the source")
	}
}

func TestSuggestName(t *testing.T) {
	valid := []string{"signal", "tag", "risk_hint", "score"}
	if got := SuggestName("signl", valid); got != "Did you mean 'signal'?" {
		t.Errorf("SuggestName(signl) = %q", got)
	}
	if got := SuggestName("zzzzzzzzzz", valid); !strings.HasPrefix(got, "Valid names:") {
		t.Errorf("SuggestName(far) = %q", got)
	}
}
