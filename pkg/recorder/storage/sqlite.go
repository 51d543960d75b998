package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/triage/pkg/config"
	"mercator-hq/triage/pkg/recorder"
)

// SQLiteStorage implements recorder.Storage on a SQLite database file.
type SQLiteStorage struct {
	db     *sql.DB
	config *config.SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if needed) the database at cfg.Path and
// applies the schema.
func NewSQLiteStorage(cfg *config.SQLiteConfig, logger *slog.Logger) (*SQLiteStorage, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, recorder.NewStorageError("sqlite", "open", errors.New("database path cannot be empty"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "recorder.sqlite")

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, recorder.NewStorageError("sqlite", "open", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, recorder.NewStorageError("sqlite", "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	s := &SQLiteStorage{db: db, config: cfg, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("SQLite storage initialized",
		"path", cfg.Path,
		"wal_mode", cfg.WALMode,
		"max_open_conns", cfg.MaxOpenConns,
	)
	return s, nil
}

// dsn sets the pragmas on every pooled connection.
func dsn(cfg *config.SQLiteConfig) string {
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	if cfg.WALMode {
		params.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + cfg.Path + "?" + params.Encode()
}

func (s *SQLiteStorage) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return recorder.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return recorder.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return recorder.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return recorder.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Store inserts record.
func (s *SQLiteStorage) Store(ctx context.Context, record *recorder.Record) error {
	hints, err := json.Marshal(record.RiskHints)
	if err != nil {
		return recorder.NewStorageError("sqlite", "store", err)
	}
	var result interface{}
	if len(record.Result) > 0 {
		result = string(record.Result)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO runs ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		record.ID, record.RunID,
		record.Artifact, record.ArtifactSHA256, record.ArtifactSize,
		record.Outcome, record.Severity, record.Score, string(hints),
		record.Emissions, record.Deferred, record.BoundsExceeded,
		int64(record.Generation), record.Digest,
		record.RecordedAt.UnixNano(), int64(record.Duration),
		result,
	)
	if err != nil {
		return recorder.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Get returns the record with the given ID.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*recorder.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM runs WHERE id = ?", id)
	if err != nil {
		return nil, recorder.NewStorageError("sqlite", "get", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, recorder.NewStorageError("sqlite", "get", err)
		}
		return nil, recorder.ErrNotFound
	}
	record, err := scanRecord(rows)
	if err != nil {
		return nil, recorder.NewStorageError("sqlite", "scan", err)
	}
	return record, nil
}

// Query retrieves records matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *recorder.Query) ([]*recorder.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhereClause(query)
	field, desc := query.Sort()
	order := "ASC"
	if desc {
		order = "DESC"
	}

	sqlQuery := "SELECT " + recordColumns + " FROM runs" + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT %d", sortColumns[field], order, order, query.PageSize())
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, recorder.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*recorder.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, recorder.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, recorder.NewStorageError("sqlite", "query", err)
	}
	return records, nil
}

// Count returns the number of records matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *recorder.Query) (int64, error) {
	where, args := buildWhereClause(query)

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs"+where, args...).Scan(&count); err != nil {
		return 0, recorder.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *SQLiteStorage) Delete(ctx context.Context, query *recorder.Query) (int64, error) {
	where, args := buildWhereClause(query)

	result, err := s.db.ExecContext(ctx, "DELETE FROM runs"+where, args...)
	if err != nil {
		return 0, recorder.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, recorder.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return recorder.NewStorageError("sqlite", "close", err)
	}
	s.logger.Debug("SQLite storage closed")
	return nil
}

// Ping checks that the database answers. It backs the readiness probe of
// the watch command.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// buildWhereClause returns " WHERE ..." (or "") and its arguments.
func buildWhereClause(query *recorder.Query) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	add := func(cond string, arg ...interface{}) {
		conditions = append(conditions, cond)
		args = append(args, arg...)
	}

	if query.StartTime != nil {
		add("recorded_at >= ?", query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		add("recorded_at <= ?", query.EndTime.UnixNano())
	}
	if len(query.IDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(query.IDs)), ", ")
		ids := make([]interface{}, len(query.IDs))
		for i, id := range query.IDs {
			ids[i] = id
		}
		add("id IN ("+placeholders+")", ids...)
	}
	if query.RunID != "" {
		add("run_id = ?", query.RunID)
	}
	if query.Artifact != "" {
		add("artifact = ?", query.Artifact)
	}
	if query.ArtifactSHA256 != "" {
		add("artifact_sha256 = ?", query.ArtifactSHA256)
	}
	if query.Outcome != "" {
		add("outcome = ?", query.Outcome)
	}
	if query.Severity != "" {
		add("severity = ?", query.Severity)
	}
	if query.MinScore != nil {
		add("score >= ?", *query.MinScore)
	}
	if query.BoundsExceeded != nil {
		add("bounds_exceeded = ?", *query.BoundsExceeded)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanRecord(rows *sql.Rows) (*recorder.Record, error) {
	var (
		record     recorder.Record
		hints      sql.NullString
		result     sql.NullString
		generation int64
		recordedAt int64
		duration   int64
	)
	err := rows.Scan(
		&record.ID, &record.RunID,
		&record.Artifact, &record.ArtifactSHA256, &record.ArtifactSize,
		&record.Outcome, &record.Severity, &record.Score, &hints,
		&record.Emissions, &record.Deferred, &record.BoundsExceeded,
		&generation, &record.Digest,
		&recordedAt, &duration,
		&result,
	)
	if err != nil {
		return nil, err
	}

	record.Generation = uint64(generation)
	record.RecordedAt = time.Unix(0, recordedAt).UTC()
	record.Duration = time.Duration(duration)
	if hints.Valid && hints.String != "" {
		if err := json.Unmarshal([]byte(hints.String), &record.RiskHints); err != nil {
			return nil, fmt.Errorf("risk_hints: %w", err)
		}
	}
	if result.Valid {
		record.Result = json.RawMessage(result.String)
	}
	return &record, nil
}
