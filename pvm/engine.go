// Package pvm is a process virtual machine: it advances process instances
// through a graph of activities one atomic operation at a time.
//
// The runtime maintains the tree of executions of each process instance
// (scopes, concurrent branches, multi-instance bodies), opens and closes the
// activity instances that bound every unit of work, and attributes each
// variable write to the activity instance it belongs to. Step chains run on a
// non-recursive trampoline, so loops of any length run in constant stack.
//
// A minimal process:
//
//	def := pvm.NewProcessDefinition("order")
//	review := def.Root.AddActivity(pvm.NewActivity("review", pvm.BehaviorWait))
//	done := def.Root.AddActivity(pvm.NewActivity("done", pvm.BehaviorEnd))
//	review.Connect("review-done", done, "")
//
//	engine, _ := pvm.New(pvm.WithHistory(history.NewMemStore()))
//	pi, err := engine.StartProcessInstance(ctx, def, map[string]interface{}{"amount": 10})
//	// pi waits in "review"
//	err = engine.Signal(ctx, pi.Find("review")[0])
package pvm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/procvm/pvm/emit"
	"github.com/dshills/procvm/pvm/history"
)

// Engine runs process instances.
//
// An Engine is safe for concurrent use by different process instances. Calls
// for one process instance must be serialized by the caller: the execution
// tree carries no locks.
type Engine struct {
	logger    zerolog.Logger
	emitter   emit.Emitter
	metrics   *PrometheusMetrics
	history   history.Sink
	maxSteps  int
	clock     func() time.Time
	ids       IDGenerator
	listeners *ListenerRegistry
	mapping   *MappingExecutor
}

// New creates an Engine configured by opts.
//
// Example:
//
//	engine, err := pvm.New(
//	    pvm.WithLogger(logger),
//	    pvm.WithEmitter(emit.NewLogEmitter(os.Stderr, false)),
//	    pvm.WithHistory(store),
//	)
func New(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, &EngineError{Message: "invalid option", Code: "INVALID_OPTION", Cause: err}
		}
	}
	if cfg.listeners == nil {
		cfg.listeners = NewListenerRegistry()
	}
	if cfg.mapping == nil {
		cfg.mapping = NewMappingExecutor()
	}

	return &Engine{
		logger:    cfg.logger,
		emitter:   cfg.emitter,
		metrics:   cfg.metrics,
		history:   cfg.history,
		maxSteps:  cfg.maxSteps,
		clock:     cfg.clock,
		ids:       cfg.ids,
		listeners: cfg.listeners,
		mapping:   cfg.mapping,
	}, nil
}

// Listeners returns the engine's listener registry.
func (e *Engine) Listeners() *ListenerRegistry {
	return e.listeners
}

// Mapping returns the engine's mapping executor.
func (e *Engine) Mapping() *MappingExecutor {
	return e.mapping
}

// StartProcessInstance creates a process instance of def and runs it until
// every branch is waiting or the instance ended.
//
// vars are set on the process instance after its activity instance opened and
// before start listeners run, so they are attributed to the process instance.
// The instance is returned even when the step chain fails, for diagnostics.
func (e *Engine) StartProcessInstance(ctx context.Context, def *ProcessDefinition, vars map[string]interface{}) (*Execution, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	pi := &Execution{
		id:         e.ids.NewID(),
		activity:   def.Root,
		scope:      true,
		active:     true,
		engine:     e,
		definition: def,
	}
	pi.processInstance = pi
	if len(vars) > 0 {
		pi.pendingVariables = vars
	}

	e.logger.Info().
		Str("process_instance_id", pi.id).
		Str("definition", def.Key).
		Msg("starting process instance")

	if err := e.perform(ctx, pi, OpProcessStart); err != nil {
		return pi, err
	}
	return pi, nil
}

// Signal resumes an execution parked in a wait activity: the activity
// instance ends and the execution leaves along its outgoing transitions.
func (e *Engine) Signal(ctx context.Context, exe *Execution) error {
	if exe == nil {
		return &EngineError{Message: "execution is required", Code: "INVALID_ARGUMENT"}
	}
	if exe.ended {
		return &EngineError{Message: "cannot signal " + exe.id, Code: "EXECUTION_ENDED", Cause: ErrExecutionEnded}
	}
	if !exe.IsWaiting() {
		return &EngineError{Message: "cannot signal " + exe.id, Code: "NOT_WAITING", Cause: ErrNotWaiting}
	}
	return e.perform(ctx, exe, OpActivityEnd)
}

// Perform runs a step chain starting with op on exe. It is the low-level
// entry point behind StartProcessInstance and Signal.
func (e *Engine) Perform(ctx context.Context, exe *Execution, op AtomicOperation) error {
	return e.perform(ctx, exe, op)
}

// emit sends an observability event about exe. activityInstanceID is the
// instance the event is attributed to.
func (e *Engine) emit(exe *Execution, msg, activityInstanceID string, meta map[string]interface{}) {
	activityID := ""
	if exe.activity != nil {
		activityID = exe.activity.ID
	}
	e.emitter.Emit(emit.Event{
		ProcessInstanceID:  exe.processInstance.id,
		Step:               exe.sequenceCounter,
		ExecutionID:        exe.id,
		ActivityID:         activityID,
		ActivityInstanceID: activityInstanceID,
		Msg:                msg,
		Meta:               meta,
	})
}
