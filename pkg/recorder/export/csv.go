package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/triage/pkg/recorder"
)

// CSVExporter writes one row per record. The full result JSON is not
// included.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Header is the CSV header row.
var Header = []string{
	"id", "run_id",
	"artifact", "sha256", "size",
	"outcome", "severity", "score", "risk_hints",
	"emissions", "deferred", "bounds_exceeded",
	"generation", "digest",
	"recorded_at", "duration_ms",
}

// Export writes records to w.
func (e *CSVExporter) Export(ctx context.Context, records []*recorder.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return recorder.NewExportError("csv", len(records), err)
		}
	}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return recorder.NewExportError("csv", len(records), err)
		}
		if err := writer.Write(row(record)); err != nil {
			return recorder.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return recorder.NewExportError("csv", len(records), err)
	}
	return nil
}

func row(r *recorder.Record) []string {
	return []string{
		r.ID,
		r.RunID,
		r.Artifact,
		r.ArtifactSHA256,
		strconv.FormatInt(r.ArtifactSize, 10),
		r.Outcome,
		r.Severity,
		strconv.FormatFloat(r.Score, 'f', -1, 64),
		strings.Join(r.RiskHints, ";"),
		strconv.Itoa(r.Emissions),
		strconv.Itoa(r.Deferred),
		strconv.FormatBool(r.BoundsExceeded),
		strconv.FormatUint(r.Generation, 10),
		r.Digest,
		r.RecordedAt.UTC().Format(time.RFC3339),
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
	}
}
