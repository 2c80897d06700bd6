package emit

// Emitter receives observability events from the process virtual machine.
//
// Emitters are the observability side channel of the runtime and are never
// part of the audit trail: the historic-audit sink (package history) records
// what happened, emitters report how it happened. Implementations include:
//   - LogEmitter: structured log lines through zerolog
//   - OTelEmitter: one OpenTelemetry span per event
//   - BufferedEmitter: in-memory capture for tests and diagnostics
//   - NullEmitter: discard
//   - MultiEmitter: fan out to several emitters
//
// Implementations should be:
//   - Non-blocking: Emit is called synchronously from inside an atomic operation
//   - Thread-safe: sibling branches of different process instances may emit concurrently
//   - Resilient: Emit never fails a step; errors are handled internally
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	//
	// Emit should not panic and must not call back into the engine.
	Emit(event Event)
}

// MultiEmitter fans every event out to a fixed list of emitters, in order.
type MultiEmitter []Emitter

// NewMultiEmitter builds a MultiEmitter, skipping nil entries.
func NewMultiEmitter(emitters ...Emitter) MultiEmitter {
	out := make(MultiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Emit forwards the event to every wrapped emitter.
func (m MultiEmitter) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
