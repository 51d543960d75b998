package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/triage/pkg/recorder"
)

// JSONExporter writes records as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes records to w. An empty slice is written as [].
func (e *JSONExporter) Export(ctx context.Context, records []*recorder.Record, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return recorder.NewExportError("json", len(records), err)
	}
	if records == nil {
		records = []*recorder.Record{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		return recorder.NewExportError("json", len(records), err)
	}
	return nil
}

// ExportStream writes records from ch as a JSON array until ch is closed.
func (e *JSONExporter) ExportStream(ctx context.Context, ch <-chan *recorder.Record, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return recorder.NewExportError("json", 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return recorder.NewExportError("json", count, ctx.Err())
		case record, ok := <-ch:
			if !ok {
				if _, err := io.WriteString(w, "]\n"); err != nil {
					return recorder.NewExportError("json", count, err)
				}
				return nil
			}
			data, err := json.Marshal(record)
			if err != nil {
				return recorder.NewExportError("json", count, err)
			}
			if count > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return recorder.NewExportError("json", count, err)
				}
			}
			if _, err := w.Write(data); err != nil {
				return recorder.NewExportError("json", count, err)
			}
			count++
		}
	}
}
