package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store.
//
// Values are normalised through JSON on write so records read back from a
// MemStore look exactly like records read back from the database stores.
//
// MemStore is thread-safe and supports concurrent access.
type MemStore struct {
	mu        sync.RWMutex
	instances map[string]*ActivityInstance // activity instance id -> record
	byProcess map[string][]string          // process instance id -> activity instance ids in start order
	variables map[string][]VariableUpdate  // process instance id -> updates
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		instances: make(map[string]*ActivityInstance),
		byProcess: make(map[string][]string),
		variables: make(map[string][]VariableUpdate),
	}
}

// RecordActivityStart stores a new activity instance. Recording the same id
// twice replaces the earlier record.
func (m *MemStore) RecordActivityStart(_ context.Context, ai ActivityInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := ai
	if _, exists := m.instances[ai.ID]; !exists {
		m.byProcess[ai.ProcessInstanceID] = append(m.byProcess[ai.ProcessInstanceID], ai.ID)
	}
	m.instances[ai.ID] = &record
	return nil
}

// RecordActivityEnd sets the end time of a recorded activity instance.
func (m *MemStore) RecordActivityEnd(_ context.Context, activityInstanceID string, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.instances[activityInstanceID]
	if !ok {
		return ErrNotFound
	}
	endTime := end
	record.EndTime = &endTime
	return nil
}

// RecordVariableUpdate appends a variable write.
func (m *MemStore) RecordVariableUpdate(_ context.Context, update VariableUpdate) error {
	normalised, err := normaliseValue(update.Value)
	if err != nil {
		return err
	}
	update.Value = normalised

	m.mu.Lock()
	defer m.mu.Unlock()

	m.variables[update.ProcessInstanceID] = append(m.variables[update.ProcessInstanceID], update)
	return nil
}

// ActivityInstance loads an activity instance by id.
func (m *MemStore) ActivityInstance(_ context.Context, id string) (ActivityInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.instances[id]
	if !ok {
		return ActivityInstance{}, ErrNotFound
	}
	return *record, nil
}

// ActivityInstances lists activity instances of a process instance in start order.
func (m *MemStore) ActivityInstances(_ context.Context, processInstanceID string) ([]ActivityInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byProcess[processInstanceID]
	out := make([]ActivityInstance, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.instances[id])
	}
	return out, nil
}

// VariableUpdates lists variable writes of a process instance in record order.
func (m *MemStore) VariableUpdates(_ context.Context, processInstanceID string) ([]VariableUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	updates := m.variables[processInstanceID]
	out := make([]VariableUpdate, len(updates))
	copy(out, updates)
	return out, nil
}

// Close is a no-op for MemStore.
func (m *MemStore) Close() error {
	return nil
}

// normaliseValue round-trips a value through JSON.
func normaliseValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variable value: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variable value: %w", err)
	}
	return out, nil
}
