package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// sqlStore holds the queries shared by the SQLite and MySQL stores. Only the
// schema and the upsert statement differ between the two dialects.
type sqlStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool

	upsertActivityQuery string
}

func (s *sqlStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// RecordActivityStart inserts or replaces an activity instance row.
func (s *sqlStore) RecordActivityStart(ctx context.Context, ai ActivityInstance) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.upsertActivityQuery,
		ai.ID,
		ai.ProcessInstanceID,
		ai.ExecutionID,
		ai.ActivityID,
		ai.ParentActivityInstanceID,
		ai.SequenceCounter,
		ai.StartTime.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record activity start: %w", err)
	}
	return nil
}

// RecordActivityEnd sets end_time for an activity instance row.
func (s *sqlStore) RecordActivityEnd(ctx context.Context, activityInstanceID string, end time.Time) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE activity_instances SET end_time = ? WHERE id = ?`,
		end.UnixNano(), activityInstanceID)
	if err != nil {
		return fmt.Errorf("failed to record activity end: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record activity end: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordVariableUpdate inserts a variable_updates row with the value as JSON.
func (s *sqlStore) RecordVariableUpdate(ctx context.Context, update VariableUpdate) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	valueJSON, err := json.Marshal(update.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal variable value: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO variable_updates
			(id, process_instance_id, execution_id, activity_instance_id, name, value, sequence_counter, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		update.ID,
		update.ProcessInstanceID,
		update.ExecutionID,
		update.ActivityInstanceID,
		update.Name,
		string(valueJSON),
		update.SequenceCounter,
		update.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record variable update: %w", err)
	}
	return nil
}

const selectActivityColumns = `
	SELECT id, process_instance_id, execution_id, activity_id, parent_activity_instance_id,
		sequence_counter, start_time, end_time
	FROM activity_instances`

// ActivityInstance loads one activity instance row.
func (s *sqlStore) ActivityInstance(ctx context.Context, id string) (ActivityInstance, error) {
	if err := s.checkOpen(); err != nil {
		return ActivityInstance{}, err
	}

	row := s.db.QueryRowContext(ctx, selectActivityColumns+` WHERE id = ?`, id)
	ai, err := scanActivityInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ActivityInstance{}, ErrNotFound
	}
	if err != nil {
		return ActivityInstance{}, fmt.Errorf("failed to load activity instance: %w", err)
	}
	return ai, nil
}

// ActivityInstances lists activity instance rows of a process instance in start order.
func (s *sqlStore) ActivityInstances(ctx context.Context, processInstanceID string) ([]ActivityInstance, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		selectActivityColumns+` WHERE process_instance_id = ? ORDER BY seq ASC`, processInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity instances: %w", err)
	}
	defer rows.Close()

	out := []ActivityInstance{}
	for rows.Next() {
		ai, err := scanActivityInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity instance: %w", err)
		}
		out = append(out, ai)
	}
	return out, rows.Err()
}

// VariableUpdates lists variable_updates rows of a process instance in insert order.
func (s *sqlStore) VariableUpdates(ctx context.Context, processInstanceID string) ([]VariableUpdate, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, process_instance_id, execution_id, activity_instance_id, name, value,
			sequence_counter, recorded_at
		FROM variable_updates
		WHERE process_instance_id = ?
		ORDER BY seq ASC`, processInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variable updates: %w", err)
	}
	defer rows.Close()

	out := []VariableUpdate{}
	for rows.Next() {
		var (
			u         VariableUpdate
			valueJSON string
			recorded  int64
		)
		if err := rows.Scan(&u.ID, &u.ProcessInstanceID, &u.ExecutionID, &u.ActivityInstanceID,
			&u.Name, &valueJSON, &u.SequenceCounter, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan variable update: %w", err)
		}
		if err := json.Unmarshal([]byte(valueJSON), &u.Value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variable value: %w", err)
		}
		u.Timestamp = time.Unix(0, recorded).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}

// Close closes the database. Calling Close twice is safe.
func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *sqlStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivityInstance(row rowScanner) (ActivityInstance, error) {
	var (
		ai    ActivityInstance
		start int64
		end   sql.NullInt64
	)
	if err := row.Scan(&ai.ID, &ai.ProcessInstanceID, &ai.ExecutionID, &ai.ActivityID,
		&ai.ParentActivityInstanceID, &ai.SequenceCounter, &start, &end); err != nil {
		return ActivityInstance{}, err
	}
	ai.StartTime = time.Unix(0, start).UTC()
	if end.Valid {
		endTime := time.Unix(0, end.Int64).UTC()
		ai.EndTime = &endTime
	}
	return ai, nil
}

func execAll(ctx context.Context, db *sql.DB, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", statementHead(stmt), err)
		}
	}
	return nil
}

func statementHead(stmt string) string {
	for i, r := range stmt {
		if r == '(' {
			return stmt[:i]
		}
	}
	return stmt
}
