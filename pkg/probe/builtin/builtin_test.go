package builtin

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/triage/pkg/budget"
	"mercator-hq/triage/pkg/facts"
	"mercator-hq/triage/pkg/probe"
)

var wide = budget.Usage{BytesRead: 1 << 20, BytesScanned: 1 << 20, Depth: 4, Members: 64}

func request(kind string, data []byte, config map[string]interface{}, allowance budget.Usage) *probe.Request {
	return &probe.Request{
		Binding:   kind,
		Kind:      kind,
		Config:    config,
		Artifact:  bytes.NewReader(data),
		Size:      int64(len(data)),
		Allowance: allowance,
	}
}

var pdfPatterns = map[string]interface{}{
	"patterns": map[string]interface{}{
		"has_javascript": "/JavaScript",
		"has_openaction": "/OpenAction",
	},
}

func TestPatternProbe(t *testing.T) {
	doc := []byte("%PDF-1.7\n1 0 obj << /Type /Catalog /Names << /JavaScript 2 0 R >> >> endobj\n%%EOF")

	tests := []struct {
		name          string
		chunk         int
		allowance     budget.Usage
		wantState     probe.State
		wantFacts     map[string]facts.Value
		wantExhausted []budget.Resource
	}{
		{
			name:      "complete scan",
			allowance: wide,
			wantState: probe.StateOK,
			wantFacts: map[string]facts.Value{
				"has_javascript": facts.Bool(true),
				"has_openaction": facts.Bool(false),
			},
		},
		{
			name:      "pattern across chunk boundaries",
			chunk:     5,
			allowance: wide,
			wantState: probe.StateOK,
			wantFacts: map[string]facts.Value{
				"has_javascript": facts.Bool(true),
				"has_openaction": facts.Bool(false),
			},
		},
		{
			name:          "scan allowance stops the probe",
			allowance:     budget.Usage{BytesRead: 1 << 20, BytesScanned: 20, Depth: 1, Members: 1},
			wantState:     probe.StatePartial,
			wantFacts:     map[string]facts.Value{},
			wantExhausted: []budget.Resource{budget.BytesScanned},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &PatternProbe{ChunkSize: tt.chunk}
			res, err := p.Run(context.Background(), request(KindPattern, doc, pdfPatterns, tt.allowance))
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if res.State != tt.wantState {
				t.Errorf("state = %s, want %s", res.State, tt.wantState)
			}
			if diff := cmp.Diff(tt.wantFacts, res.Facts, cmp.Comparer(func(a, b facts.Value) bool { return a == b })); diff != "" {
				t.Errorf("facts mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantExhausted, res.Exhausted); diff != "" {
				t.Errorf("exhausted mismatch (-want +got):\n%s", diff)
			}
			if res.Consumed.BytesScanned > tt.allowance.BytesScanned {
				t.Errorf("scanned %d bytes past the allowance of %d", res.Consumed.BytesScanned, tt.allowance.BytesScanned)
			}
		})
	}
}

func TestPatternProbe_ReadCeiling(t *testing.T) {
	doc := []byte(strings.Repeat("A", 64) + "/JavaScript")
	tracker := budget.NewTracker(budget.Bounds{MaxReadBytes: 32, MaxScanBytes: 1024, MaxDepth: 1, MaxMembers: 1})

	req := request(KindPattern, doc, pdfPatterns, tracker.Allowance())
	req.Artifact = budget.NewReaderAt(bytes.NewReader(doc), int64(len(doc)), tracker)

	res, err := (&PatternProbe{ChunkSize: 16}).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.State != probe.StatePartial {
		t.Errorf("state = %s, want partial", res.State)
	}
	if diff := cmp.Diff([]budget.Resource{budget.BytesRead}, res.Exhausted); diff != "" {
		t.Errorf("exhausted mismatch (-want +got):\n%s", diff)
	}
	if _, ok := res.Facts["has_javascript"]; ok {
		t.Error("an unscanned pattern was reported")
	}
	if used := tracker.Usage().BytesRead; used != 32 {
		t.Errorf("bytes read = %d, want 32", used)
	}
}

func TestPatternProbe_Config(t *testing.T) {
	bad := []map[string]interface{}{
		nil,
		{"patterns": "JavaScript"},
		{"patterns": map[string]interface{}{"x": 1}},
		{"patterns": map[string]interface{}{"x": ""}},
	}
	for i, cfg := range bad {
		if _, err := (&PatternProbe{}).Run(context.Background(), request(KindPattern, []byte("x"), cfg, wide)); err == nil {
			t.Errorf("config %d: expected an error", i)
		}
	}
}

func buildZip(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, n := range names {
		f, err := w.Create(n)
		if err != nil {
			t.Fatalf("Create(%s): %v", n, err)
		}
		if _, err := f.Write([]byte("content of " + n)); err != nil {
			t.Fatalf("Write(%s): %v", n, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

// localEntries writes stored members with sizes in their local headers
// and no central directory.
func localEntries(names ...string) []byte {
	var buf bytes.Buffer
	for _, n := range names {
		data := []byte("content of " + n)
		var h [localHeaderLen]byte
		binary.LittleEndian.PutUint32(h[0:4], localHeaderSignature)
		binary.LittleEndian.PutUint16(h[4:6], 20)
		binary.LittleEndian.PutUint32(h[14:18], crc32.ChecksumIEEE(data))
		binary.LittleEndian.PutUint32(h[18:22], uint32(len(data)))
		binary.LittleEndian.PutUint32(h[22:26], uint32(len(data)))
		binary.LittleEndian.PutUint16(h[26:28], uint16(len(n)))
		buf.Write(h[:])
		buf.WriteString(n)
		buf.Write(data)
	}
	return buf.Bytes()
}

func TestArchiveProbe(t *testing.T) {
	config := map[string]interface{}{"nested_extensions": []interface{}{"zip", "jar"}}

	tests := []struct {
		name          string
		data          []byte
		allowance     budget.Usage
		wantState     probe.State
		wantFacts     map[string]facts.Value
		wantExhausted []budget.Resource
	}{
		{
			name:      "complete archive",
			data:      buildZip(t, "readme.txt", "setup.EXE", "inner.zip"),
			allowance: wide,
			wantState: probe.StateOK,
			wantFacts: map[string]facts.Value{
				"members":        facts.Number(3),
				"has_executable": facts.Bool(true),
				"nested":         facts.Number(1),
				"encrypted":      facts.Bool(false),
			},
		},
		{
			name:      "member allowance",
			data:      buildZip(t, "a.txt", "b.txt", "c.exe"),
			allowance: budget.Usage{BytesRead: 1 << 20, BytesScanned: 1 << 20, Depth: 1, Members: 2},
			wantState: probe.StatePartial,
			wantFacts: map[string]facts.Value{
				"members":        facts.Number(2),
				"has_executable": facts.Bool(false),
				"nested":         facts.Number(0),
				"encrypted":      facts.Bool(false),
			},
			wantExhausted: []budget.Resource{budget.Members},
		},
		{
			name:      "missing central directory",
			data:      localEntries("doc.txt", "run.bat"),
			allowance: wide,
			wantState: probe.StatePartial,
			wantFacts: map[string]facts.Value{
				"members":        facts.Number(2),
				"has_executable": facts.Bool(true),
				"nested":         facts.Number(0),
				"encrypted":      facts.Bool(false),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := (&ArchiveProbe{}).Run(context.Background(), request(KindArchive, tt.data, config, tt.allowance))
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if res.State != tt.wantState {
				t.Errorf("state = %s, want %s (%s)", res.State, tt.wantState, res.Detail)
			}
			if diff := cmp.Diff(tt.wantFacts, res.Facts, cmp.Comparer(func(a, b facts.Value) bool { return a == b })); diff != "" {
				t.Errorf("facts mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantExhausted, res.Exhausted); diff != "" {
				t.Errorf("exhausted mismatch (-want +got):\n%s", diff)
			}
			if res.Consumed.Members > tt.allowance.Members {
				t.Errorf("visited %d members past the allowance of %d", res.Consumed.Members, tt.allowance.Members)
			}
		})
	}
}

func TestArchiveProbe_NotAnArchive(t *testing.T) {
	_, err := (&ArchiveProbe{}).Run(context.Background(), request(KindArchive, []byte("%PDF-1.7 not a zip"), nil, wide))
	if err == nil {
		t.Fatal("expected an error for a non-zip artifact")
	}
}

func TestNewRegistry(t *testing.T) {
	if diff := cmp.Diff([]string{KindArchive, KindPattern}, NewRegistry().Kinds()); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
}
