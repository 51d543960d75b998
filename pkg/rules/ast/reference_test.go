package ast

import "testing"

func TestParseReference(t *testing.T) {
	tests := []struct {
		field string
		want  Reference
		ok    bool
	}{
		{"risk_hints", Reference{Kind: RefRiskHints}, true},
		{"score", Reference{Kind: RefScore}, true},
		{"outcome", Reference{Kind: RefOutcome}, true},
		{"outcome.severity", Reference{Kind: RefOutcomeSeverity}, true},
		{"context.size", Reference{Kind: RefContext, Key: "size"}, true},
		{"context.claimed.extension", Reference{Kind: RefContext, Key: "claimed.extension"}, true},
		{"pdf.has_javascript", Reference{Kind: RefFact, Namespace: "pdf", Key: "has_javascript"}, true},
		{"PdfHasJavascript", Reference{Kind: RefFact, Key: "PdfHasJavascript"}, true},
		{"", Reference{}, false},
		{"pdf.", Reference{}, false},
		{".key", Reference{}, false},
		{"a.b.c", Reference{}, false},
		{"score.value", Reference{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := ParseReference(tt.field)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseReference(%q) = %+v, %v; want %+v, %v", tt.field, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestContextType(t *testing.T) {
	if typ, ok := ContextType("claimed.mime"); !ok || typ != ValueTypeString {
		t.Errorf("ContextType(claimed.mime) = %q, %v", typ, ok)
	}
	if _, ok := ContextType("claimed."); ok {
		t.Error("ContextType accepted an empty claimed key")
	}
	if typ, ok := ContextType("bounds_exceeded"); !ok || typ != ValueTypeBoolean {
		t.Errorf("ContextType(bounds_exceeded) = %q, %v", typ, ok)
	}
}

func TestSeverityRank(t *testing.T) {
	order := []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s does not outrank %s", order[i], order[i-1])
		}
	}
	if Severity("bogus").Rank() != 0 {
		t.Error("unknown severity has a non-zero rank")
	}
}
