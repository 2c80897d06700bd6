// Package history provides the historic-audit tier of the process virtual
// machine: activity-instance boundaries and attributed variable writes.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested activity instance does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by database-backed stores after Close.
var ErrClosed = errors.New("store is closed")

// Sink consumes audit records produced while a step chain runs.
//
// The runtime calls the sink synchronously from inside atomic operations; an
// error aborts the step chain like a failing listener would. Implementations
// must be safe for concurrent use by different process instances.
type Sink interface {
	// RecordActivityStart persists a newly opened activity instance.
	RecordActivityStart(ctx context.Context, ai ActivityInstance) error

	// RecordActivityEnd closes a previously recorded activity instance.
	// Returns ErrNotFound if the instance was never recorded.
	RecordActivityEnd(ctx context.Context, activityInstanceID string, end time.Time) error

	// RecordVariableUpdate persists one attributed variable write.
	RecordVariableUpdate(ctx context.Context, update VariableUpdate) error
}

// Store is a Sink that can also be queried.
//
// Implementations:
//   - MemStore: in-memory, for tests and the CLI default
//   - SQLiteStore: single-file database (modernc.org/sqlite)
//   - MySQLStore: shared database (go-sql-driver/mysql)
type Store interface {
	Sink

	// ActivityInstance loads one activity instance by id.
	ActivityInstance(ctx context.Context, id string) (ActivityInstance, error)

	// ActivityInstances lists the activity instances of a process instance in
	// start order.
	ActivityInstances(ctx context.Context, processInstanceID string) ([]ActivityInstance, error)

	// VariableUpdates lists the variable writes of a process instance in the
	// order they were recorded.
	VariableUpdates(ctx context.Context, processInstanceID string) ([]VariableUpdate, error)

	// Close releases underlying resources.
	Close() error
}

// ActivityInstance is the audit record of one activity-instance boundary.
type ActivityInstance struct {
	// ID is the activity instance id assigned when the boundary opened.
	ID string `json:"id"`

	// ProcessInstanceID identifies the owning process instance.
	ProcessInstanceID string `json:"process_instance_id"`

	// ExecutionID is the execution that opened the boundary.
	ExecutionID string `json:"execution_id"`

	// ActivityID is the graph node the boundary belongs to.
	ActivityID string `json:"activity_id"`

	// ParentActivityInstanceID is the enclosing activity instance, empty for
	// the process-level instance.
	ParentActivityInstanceID string `json:"parent_activity_instance_id,omitempty"`

	// SequenceCounter is the execution's counter when the boundary opened.
	SequenceCounter int64 `json:"sequence_counter"`

	// StartTime is when the boundary opened.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the boundary closed, nil while open.
	EndTime *time.Time `json:"end_time,omitempty"`
}

// VariableUpdate is the audit record of one variable write.
type VariableUpdate struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`

	// ProcessInstanceID identifies the owning process instance.
	ProcessInstanceID string `json:"process_instance_id"`

	// ExecutionID is the execution that now holds the variable.
	ExecutionID string `json:"execution_id"`

	// ActivityInstanceID is the activity instance the write is attributed to.
	ActivityInstanceID string `json:"activity_instance_id"`

	// Name is the variable name.
	Name string `json:"name"`

	// Value is the written value. Stores persist it as JSON, so values read
	// back follow encoding/json decoding rules.
	Value interface{} `json:"value"`

	// SequenceCounter is the writing execution's counter at write time.
	SequenceCounter int64 `json:"sequence_counter"`

	// Timestamp is when the write happened.
	Timestamp time.Time `json:"timestamp"`
}
