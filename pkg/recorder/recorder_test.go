package recorder_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/triage/pkg/engine"
	"mercator-hq/triage/pkg/facts"
	"mercator-hq/triage/pkg/recorder"
	"mercator-hq/triage/pkg/recorder/storage"
)

func testResult() *engine.Result {
	return &engine.Result{
		RunID:      "run-1",
		Artifact:   "invoice.pdf",
		Generation: 3,
		Outcome:    facts.Outcome{Name: "Suspicious", Severity: "medium", Rank: 1},
		Score:      45,
		RiskHints:  []string{"EmbeddedJavascript", "OpenAction"},
		Emissions:  []engine.Emission{{Kind: "alert", Stage: "verdict", Rule: "js"}},
		Duration:   12 * time.Millisecond,
	}
}

func TestNewRecord(t *testing.T) {
	result := testResult()

	rec, err := recorder.NewRecord(result, "abc123", 2048, true)
	if err != nil {
		t.Fatalf("NewRecord() error = %v", err)
	}

	if rec.ID == "" || rec.ID == result.RunID {
		t.Errorf("ID = %q, want a fresh record ID", rec.ID)
	}
	want := recorder.Record{
		ID:             rec.ID,
		RunID:          "run-1",
		Artifact:       "invoice.pdf",
		ArtifactSHA256: "abc123",
		ArtifactSize:   2048,
		Outcome:        "Suspicious",
		Severity:       "medium",
		Score:          45,
		RiskHints:      []string{"EmbeddedJavascript", "OpenAction"},
		Emissions:      1,
		Generation:     3,
		Digest:         result.Digest(),
		RecordedAt:     rec.RecordedAt,
		Duration:       12 * time.Millisecond,
		Result:         rec.Result,
	}
	if diff := cmp.Diff(want, *rec); diff != "" {
		t.Errorf("NewRecord() mismatch (-want +got):\n%s", diff)
	}

	var decoded engine.Result
	if err := json.Unmarshal(rec.Result, &decoded); err != nil {
		t.Fatalf("Result is not valid JSON: %v", err)
	}
	if decoded.Digest() != rec.Digest {
		t.Errorf("decoded result digest = %s, want %s", decoded.Digest(), rec.Digest)
	}

	bare, err := recorder.NewRecord(result, "abc123", 2048, false)
	if err != nil {
		t.Fatalf("NewRecord() error = %v", err)
	}
	if bare.Result != nil {
		t.Errorf("Result = %s, want nil when not included", bare.Result)
	}
}

func TestRecorder_CloseDrainsQueue(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := recorder.NewRecorder(store, &recorder.Config{
		AsyncBuffer:  16,
		WriteTimeout: time.Second,
	}, nil)

	for range 10 {
		if _, err := rec.RecordResult(t.Context(), testResult(), "abc123", 2048); err != nil {
			t.Fatalf("RecordResult() error = %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := store.Size(); got != 10 {
		t.Errorf("stored %d records, want 10", got)
	}
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	rec := recorder.NewRecorder(storage.NewMemoryStorage(), nil, nil)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	_, err := rec.RecordResult(t.Context(), testResult(), "abc123", 1)
	if !errors.Is(err, recorder.ErrRecorderClosed) {
		t.Errorf("RecordResult() error = %v, want ErrRecorderClosed", err)
	}
	var recErr *recorder.RecorderError
	if !errors.As(err, &recErr) || recErr.RecordID == "" {
		t.Errorf("RecordResult() error = %v, want RecorderError with a record ID", err)
	}
}

func TestHashArtifact(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "empty",
			content: "",
			want:    "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:    "abc",
			content: "abc",
			want:    "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := recorder.HashArtifact(bytes.NewReader([]byte(tt.content)), int64(len(tt.content)))
			if err != nil {
				t.Fatalf("HashArtifact() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HashArtifact() = %s, want %s", got, tt.want)
			}
			if got := recorder.HashBytes([]byte(tt.content)); got != tt.want {
				t.Errorf("HashBytes() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQuery_Validate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	negative := -1.0

	tests := []struct {
		name    string
		query   recorder.Query
		wantErr bool
	}{
		{name: "empty", query: recorder.Query{}},
		{name: "full", query: recorder.Query{StartTime: &earlier, EndTime: &now, Limit: 10, Offset: 5, SortBy: "score", SortOrder: "asc"}},
		{name: "negative limit", query: recorder.Query{Limit: -1}, wantErr: true},
		{name: "limit too large", query: recorder.Query{Limit: recorder.MaxLimit + 1}, wantErr: true},
		{name: "negative offset", query: recorder.Query{Offset: -1}, wantErr: true},
		{name: "unknown sort field", query: recorder.Query{SortBy: "outcome; DROP TABLE runs"}, wantErr: true},
		{name: "unknown sort order", query: recorder.Query{SortOrder: "up"}, wantErr: true},
		{name: "inverted time range", query: recorder.Query{StartTime: &now, EndTime: &earlier}, wantErr: true},
		{name: "negative min score", query: recorder.Query{MinScore: &negative}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var qErr *recorder.QueryError
			if err != nil && !errors.As(err, &qErr) {
				t.Errorf("Validate() error = %T, want *QueryError", err)
			}
		})
	}
}

func TestQuery_Sort(t *testing.T) {
	field, desc := (&recorder.Query{}).Sort()
	if field != "recorded_at" || !desc {
		t.Errorf("Sort() = %s, %v, want recorded_at, true", field, desc)
	}
	field, desc = (&recorder.Query{SortBy: "score", SortOrder: "asc"}).Sort()
	if field != "score" || desc {
		t.Errorf("Sort() = %s, %v, want score, false", field, desc)
	}
}
