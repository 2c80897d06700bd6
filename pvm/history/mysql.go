package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// Designed for deployments where several engine processes share one audit
// trail. Uses the same schema as SQLiteStore.
type MySQLStore struct {
	sqlStore
}

// NewMySQLStore creates a MySQL-backed store.
//
// The DSN format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Never hardcode credentials; read the DSN from the environment:
//
//	st, err := history.NewMySQLStore(os.Getenv("PROCVM_MYSQL_DSN"))
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store := &MySQLStore{
		sqlStore: sqlStore{
			db: db,
			upsertActivityQuery: `
				INSERT INTO activity_instances
					(id, process_instance_id, execution_id, activity_id, parent_activity_instance_id, sequence_counter, start_time)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON DUPLICATE KEY UPDATE
					execution_id = VALUES(execution_id),
					parent_activity_instance_id = VALUES(parent_activity_instance_id),
					sequence_counter = VALUES(sequence_counter),
					start_time = VALUES(start_time)`,
		},
	}

	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	return execAll(ctx, m.db, []string{
		`CREATE TABLE IF NOT EXISTS activity_instances (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			id VARCHAR(255) NOT NULL,
			process_instance_id VARCHAR(255) NOT NULL,
			execution_id VARCHAR(255) NOT NULL,
			activity_id VARCHAR(255) NOT NULL,
			parent_activity_instance_id VARCHAR(255) NOT NULL DEFAULT '',
			sequence_counter BIGINT NOT NULL,
			start_time BIGINT NOT NULL,
			end_time BIGINT NULL,
			UNIQUE KEY unique_activity_instance (id),
			INDEX idx_activity_instances_pi (process_instance_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS variable_updates (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			id VARCHAR(255) NOT NULL,
			process_instance_id VARCHAR(255) NOT NULL,
			execution_id VARCHAR(255) NOT NULL,
			activity_instance_id VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			value JSON NOT NULL,
			sequence_counter BIGINT NOT NULL,
			recorded_at BIGINT NOT NULL,
			UNIQUE KEY unique_variable_update (id),
			INDEX idx_variable_updates_pi (process_instance_id),
			INDEX idx_variable_updates_ai (activity_instance_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	})
}
