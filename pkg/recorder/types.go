package recorder

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// Record is the persisted summary of one finalized run. Result holds the
// complete engine result as JSON so a record can be replayed or exported
// without the engine.
type Record struct {
	// Identity
	ID    string `json:"id"`     // UUID v4
	RunID string `json:"run_id"` // From the engine

	// Artifact
	Artifact       string `json:"artifact"`
	ArtifactSHA256 string `json:"artifact_sha256"`
	ArtifactSize   int64  `json:"artifact_size"`

	// Verdict
	Outcome        string   `json:"outcome"`
	Severity       string   `json:"severity"`
	Score          float64  `json:"score"`
	RiskHints      []string `json:"risk_hints"`
	Emissions      int      `json:"emissions"`
	Deferred       int      `json:"deferred"`
	BoundsExceeded bool     `json:"bounds_exceeded"`

	// Reproducibility
	Generation uint64 `json:"generation"` // Pipeline generation the run used
	Digest     string `json:"digest"`     // engine.Result.Digest

	RecordedAt time.Time     `json:"recorded_at"`
	Duration   time.Duration `json:"duration"`

	Result json.RawMessage `json:"result,omitempty"`
}

// Query defines filter parameters for querying run records.
type Query struct {
	// Time range over RecordedAt
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	IDs            []string `json:"ids,omitempty"`
	RunID          string   `json:"run_id,omitempty"`
	Artifact       string   `json:"artifact,omitempty"`
	ArtifactSHA256 string   `json:"artifact_sha256,omitempty"`
	Outcome        string   `json:"outcome,omitempty"`
	Severity       string   `json:"severity,omitempty"`
	MinScore       *float64 `json:"min_score,omitempty"`
	BoundsExceeded *bool    `json:"bounds_exceeded,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // "recorded_at", "score", "artifact", "duration"
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Storage defines the interface for run record backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a record. Storing an ID twice is an error.
	Store(ctx context.Context, record *Record) error

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Query retrieves records matching the query filters.
	// Returns an empty slice if no records match.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of records matching the query filters.
	// Pagination fields are ignored.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes records matching the query filters and returns the
	// number deleted. Pagination fields are ignored.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Exporter writes run records in a particular format.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
}
