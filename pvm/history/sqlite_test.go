package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore(t *testing.T) {
	runStoreConformance(t, func(t *testing.T) Store {
		return newTestSQLiteStore(t)
	})
}

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	start := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	if err := st.RecordActivityStart(ctx, ActivityInstance{
		ID: "task:e1:1", ProcessInstanceID: "pi", ExecutionID: "e1", ActivityID: "task", StartTime: start,
	}); err != nil {
		t.Fatalf("RecordActivityStart failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	ai, err := reopened.ActivityInstance(ctx, "task:e1:1")
	if err != nil {
		t.Fatalf("ActivityInstance after reopen failed: %v", err)
	}
	if !ai.StartTime.Equal(start) {
		t.Errorf("expected start %v, got %v", start, ai.StartTime)
	}
	if reopened.Path() != path {
		t.Errorf("expected path %q, got %q", path, reopened.Path())
	}
}

func TestSQLiteStore_Closed(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLiteStore(t)

	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	if err := st.RecordActivityStart(ctx, ActivityInstance{ID: "x"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from RecordActivityStart, got %v", err)
	}
	if err := st.RecordVariableUpdate(ctx, VariableUpdate{ID: "x"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from RecordVariableUpdate, got %v", err)
	}
	if _, err := st.VariableUpdates(ctx, "pi"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from VariableUpdates, got %v", err)
	}
	if err := st.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Ping, got %v", err)
	}
}
