package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps the audit trail in a single-file database, created on first use.
// Designed for:
//   - Development and the CLI
//   - Single-process deployments that need the history to survive restarts
//
// Schema:
//   - activity_instances: one row per activity-instance boundary
//   - variable_updates: one row per attributed variable write
type SQLiteStore struct {
	sqlStore
	path string
}

// NewSQLiteStore opens (or creates) a SQLite database at path.
//
// Use ":memory:" for a throwaway database.
//
// Example:
//
//	st, err := history.NewSQLiteStore("./history.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	if err := execAll(ctx, db, pragmas); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &SQLiteStore{
		sqlStore: sqlStore{
			db: db,
			upsertActivityQuery: `
				INSERT INTO activity_instances
					(id, process_instance_id, execution_id, activity_id, parent_activity_instance_id, sequence_counter, start_time)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					execution_id = excluded.execution_id,
					parent_activity_instance_id = excluded.parent_activity_instance_id,
					sequence_counter = excluded.sequence_counter,
					start_time = excluded.start_time`,
		},
		path: path,
	}

	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	return execAll(ctx, s.db, []string{
		`CREATE TABLE IF NOT EXISTS activity_instances (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			process_instance_id TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			parent_activity_instance_id TEXT NOT NULL DEFAULT '',
			sequence_counter INTEGER NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_instances_pi ON activity_instances(process_instance_id)`,
		`CREATE TABLE IF NOT EXISTS variable_updates (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			process_instance_id TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			activity_instance_id TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			sequence_counter INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_variable_updates_pi ON variable_updates(process_instance_id)`,
		`CREATE INDEX IF NOT EXISTS idx_variable_updates_ai ON variable_updates(activity_instance_id)`,
	})
}
