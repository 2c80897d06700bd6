package pvm

import (
	"context"
	"sync"
)

// EventKind identifies the boundary a listener is notified about.
type EventKind string

const (
	// EventStart fires after an activity instance opened.
	EventStart EventKind = "start"

	// EventEnd fires before an activity instance closes.
	EventEnd EventKind = "end"

	// EventTake fires while an execution takes a transition.
	EventTake EventKind = "take"
)

// AnyActivity registers a listener for every activity (or every transition,
// for take listeners).
const AnyActivity = "*"

// Listener is notified synchronously from inside an atomic operation.
//
// A listener may read and write variables on the execution and may start step
// chains on other executions. Starting a chain on the execution it was
// notified on fails with ErrIllegalReentrancy. A returned error aborts the
// step chain.
type Listener interface {
	Notify(ctx context.Context, exe *Execution) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, exe *Execution) error

// Notify calls f.
func (f ListenerFunc) Notify(ctx context.Context, exe *Execution) error {
	return f(ctx, exe)
}

type registration struct {
	key      string
	listener Listener
}

// ListenerRegistry holds listeners by event kind in registration order.
//
// Start and end listeners are keyed by activity id, take listeners by
// transition id. AnyActivity matches every key.
type ListenerRegistry struct {
	mu            sync.RWMutex
	registrations map[EventKind][]registration
}

// NewListenerRegistry creates an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{
		registrations: make(map[EventKind][]registration),
	}
}

// Register adds l for kind on key (an activity id, a transition id or AnyActivity).
func (r *ListenerRegistry) Register(key string, kind EventKind, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations[kind] = append(r.registrations[kind], registration{key: key, listener: l})
}

// RegisterFunc is Register for a plain function.
func (r *ListenerRegistry) RegisterFunc(key string, kind EventKind, fn func(ctx context.Context, exe *Execution) error) {
	r.Register(key, kind, ListenerFunc(fn))
}

// Listeners returns the listeners that match key for kind, in registration order.
func (r *ListenerRegistry) Listeners(key string, kind EventKind) []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Listener
	for _, reg := range r.registrations[kind] {
		if reg.key == key || reg.key == AnyActivity {
			out = append(out, reg.listener)
		}
	}
	return out
}

// Notify invokes the matching listeners for exe. The first error stops the
// invocation and is returned as a *ListenerError.
func (r *ListenerRegistry) Notify(ctx context.Context, exe *Execution, kind EventKind) error {
	key := listenerKey(exe, kind)
	if key == "" {
		return nil
	}
	for _, l := range r.Listeners(key, kind) {
		if err := l.Notify(ctx, exe); err != nil {
			activityID := ""
			if exe.activity != nil {
				activityID = exe.activity.ID
			}
			return &ListenerError{
				ActivityID:  activityID,
				ExecutionID: exe.id,
				Event:       kind,
				Cause:       err,
			}
		}
	}
	return nil
}

func listenerKey(exe *Execution, kind EventKind) string {
	if kind == EventTake {
		if exe.transition == nil {
			return ""
		}
		return exe.transition.ID
	}
	if exe.activity == nil {
		return ""
	}
	return exe.activity.ID
}
