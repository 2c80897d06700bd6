package pvm

import (
	"context"

	"github.com/dshills/procvm/pvm/emit"
	"github.com/dshills/procvm/pvm/history"
)

// phase is one step of the event-notification protocol. Every operation that
// opens or closes an activity instance, or takes a transition, runs the phases
// in this order.
type phase int

const (
	phaseBeforeNotify phase = iota
	phaseStarted
	phaseNotify
	phaseCompleted
)

// eventStrategy plugs the setup (phaseStarted) and teardown (phaseCompleted)
// steps of one event kind into the protocol.
type eventStrategy struct {
	started   func(ctx context.Context, eng *Engine, exe *Execution) error
	completed func(ctx context.Context, eng *Engine, exe *Execution) error
}

var eventStrategies = map[EventKind]eventStrategy{
	EventStart: {
		started:   openActivityInstance,
		completed: syncParentActivityInstance,
	},
	EventEnd: {
		started:   executeOutputMapping,
		completed: closeActivityInstance,
	},
	EventTake: {},
}

// notifyEvent runs the event-notification protocol of kind on exe.
func notifyEvent(ctx context.Context, eng *Engine, exe *Execution, kind EventKind) error {
	strategy := eventStrategies[kind]

	for p := phaseBeforeNotify; p <= phaseCompleted; p++ {
		var err error
		switch p {
		case phaseBeforeNotify:
		case phaseStarted:
			if strategy.started != nil {
				err = strategy.started(ctx, eng, exe)
			}
		case phaseNotify:
			err = eng.listeners.Notify(ctx, exe, kind)
			if err != nil {
				eng.metrics.RecordListenerFailure(string(kind))
			}
		case phaseCompleted:
			if strategy.completed != nil {
				err = strategy.completed(ctx, eng, exe)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// openActivityInstance opens the boundary before any variable write, then
// applies the input mapping so mapped writes attribute to the new instance.
func openActivityInstance(ctx context.Context, eng *Engine, exe *Execution) error {
	exe.IncrementSequenceCounter()
	id := exe.EnterActivityInstance()

	if eng.history != nil {
		err := eng.history.RecordActivityStart(ctx, history.ActivityInstance{
			ID:                       id,
			ProcessInstanceID:        exe.processInstance.id,
			ExecutionID:              exe.id,
			ActivityID:               exe.activity.ID,
			ParentActivityInstanceID: ParentActivityInstanceID(exe),
			SequenceCounter:          exe.sequenceCounter,
			StartTime:                eng.clock(),
		})
		if err != nil {
			return &EngineError{Message: "failed to record activity start " + id, Code: "HISTORY_ERROR", Cause: err}
		}
	}
	eng.metrics.RecordActivityInstanceStart()
	eng.emit(exe, emit.MsgActivityInstanceStart, id, nil)

	if exe.pendingVariables != nil {
		vars := exe.pendingVariables
		exe.pendingVariables = nil
		if err := exe.SetVariables(vars); err != nil {
			return err
		}
	}

	return exe.ExecuteIoMapping()
}

// syncParentActivityInstance copies the new instance id onto the parent when
// exe is the scope execution of a scope-owning activity. The parent token sits
// one level above the logical scope boundary and must report the same instance.
func syncParentActivityInstance(_ context.Context, _ *Engine, exe *Execution) error {
	parent := exe.parent
	if parent == nil || !exe.IsScope() || exe.activity == nil {
		return nil
	}
	if !exe.activity.Scope || !exe.activity.Behavior.IsScopeOwning() {
		return nil
	}
	exe.parentSynced = true
	exe.parentPrevID = parent.activityInstanceID
	parent.SetActivityInstanceID(exe.activityInstanceID)
	return nil
}

// executeOutputMapping runs while the instance is still open so output writes
// attribute to live instances.
func executeOutputMapping(_ context.Context, eng *Engine, exe *Execution) error {
	return eng.mapping.ExecuteOutput(exe)
}

// closeActivityInstance closes the boundary after end listeners ran and undoes
// the parent propagation made when it opened.
func closeActivityInstance(ctx context.Context, eng *Engine, exe *Execution) error {
	id := exe.activityInstanceID
	if err := leaveActivityInstance(ctx, eng, exe); err != nil {
		return err
	}

	if exe.parentSynced {
		if exe.parent != nil && exe.parent.activityInstanceID == id {
			exe.parent.SetActivityInstanceID(exe.parentPrevID)
		}
		exe.parentSynced = false
		exe.parentPrevID = ""
	}
	return nil
}

// leaveActivityInstance closes the open instance of exe and records it.
func leaveActivityInstance(ctx context.Context, eng *Engine, exe *Execution) error {
	id := exe.activityInstanceID
	if id == "" {
		return nil
	}
	exe.LeaveActivityInstance()

	if eng.history != nil {
		if err := eng.history.RecordActivityEnd(ctx, id, eng.clock()); err != nil {
			return &EngineError{Message: "failed to record activity end " + id, Code: "HISTORY_ERROR", Cause: err}
		}
	}
	eng.emit(exe, emit.MsgActivityInstanceEnd, id, nil)
	return nil
}
