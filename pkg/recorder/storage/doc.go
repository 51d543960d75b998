// Package storage provides recorder.Storage backends.
//
// MemoryStorage keeps records in a map and suits tests and one-shot runs.
// SQLiteStorage persists records with the pure-Go modernc.org/sqlite
// driver. It stores timestamps and durations as integer nanoseconds, sets
// busy_timeout (and WAL when configured) on every pooled connection, and
// checks the schema version on open.
//
//	store, err := storage.NewSQLiteStorage(&config.SQLiteConfig{
//		Path:        "data/triage.db",
//		WALMode:     true,
//		BusyTimeout: 5 * time.Second,
//	}, logger)
package storage
