package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// Events are grouped by process instance so a test or a diagnostics endpoint
// can replay exactly what one instance did.
//
// Warning: all events are kept until Clear is called.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	engine, _ := pvm.New(pvm.WithEmitter(emitter))
//	pi, _ := engine.StartProcessInstance(ctx, def, nil)
//
//	starts := emitter.GetHistoryWithFilter(pi.ID(), emit.HistoryFilter{Msg: emit.MsgActivityInstanceStart})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // process instance id -> events
}

// HistoryFilter specifies criteria for filtering captured events.
//
// All fields are optional and combined with AND logic.
type HistoryFilter struct {
	ExecutionID string // Filter by execution (empty = no filter)
	ActivityID  string // Filter by activity (empty = no filter)
	Msg         string // Filter by message (empty = no filter)
	MinStep     *int64 // Minimum sequence counter (nil = no filter)
	MaxStep     *int64 // Maximum sequence counter (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.ProcessInstanceID] = append(b.events[event.ProcessInstanceID], event)
}

// GetHistory returns a copy of all events of a process instance in emission
// order. Unknown instances yield an empty, non-nil slice.
func (b *BufferedEmitter) GetHistory(processInstanceID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[processInstanceID]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// GetHistoryWithFilter returns the events of a process instance matching filter.
func (b *BufferedEmitter) GetHistoryWithFilter(processInstanceID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[processInstanceID] {
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.ExecutionID != "" && event.ExecutionID != filter.ExecutionID {
		return false
	}
	if filter.ActivityID != "" && event.ActivityID != filter.ActivityID {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinStep != nil && event.Step < *filter.MinStep {
		return false
	}
	if filter.MaxStep != nil && event.Step > *filter.MaxStep {
		return false
	}
	return true
}

// Clear removes stored events for one process instance, or for all of them
// when processInstanceID is empty.
func (b *BufferedEmitter) Clear(processInstanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if processInstanceID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, processInstanceID)
}
