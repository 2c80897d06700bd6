package pvm

import (
	"context"

	"github.com/dshills/procvm/pvm/emit"
)

// The closed set of atomic operations.
var (
	OpProcessStart             AtomicOperation = processStart{}
	OpActivityStartCreateScope AtomicOperation = activityStartCreateScope{}
	OpActivityStart            AtomicOperation = activityStart{}
	OpActivityExecute          AtomicOperation = activityExecute{}
	OpActivityEnd              AtomicOperation = activityEnd{}
	OpActivityLeave            AtomicOperation = activityLeave{}
	OpTransitionTake           AtomicOperation = transitionTake{}
	OpTokenEnd                 AtomicOperation = tokenEnd{}
	OpScopeComplete            AtomicOperation = scopeComplete{}
	OpMultiInstanceNext        AtomicOperation = multiInstanceNext{}
	OpProcessEnd               AtomicOperation = processEnd{}
)

// Operations lists every atomic operation.
func Operations() []AtomicOperation {
	return []AtomicOperation{
		OpProcessStart,
		OpActivityStartCreateScope,
		OpActivityStart,
		OpActivityExecute,
		OpActivityEnd,
		OpActivityLeave,
		OpTransitionTake,
		OpTokenEnd,
		OpScopeComplete,
		OpMultiInstanceNext,
		OpProcessEnd,
	}
}

// enterOperation returns the operation that moves a token into a.
// Scope activities get an execution of their own.
func enterOperation(a *Activity) AtomicOperation {
	if a.Scope {
		return OpActivityStartCreateScope
	}
	return OpActivityStart
}

// processStart opens the process instance's own activity instance.
type processStart struct{}

func (processStart) Name() string { return "process-start" }

func (processStart) Execute(ctx context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	eng := exe.engineRef()
	eng.emit(exe, emit.MsgProcessStart, "", map[string]interface{}{
		"definition": exe.Definition().Key,
	})
	if err := notifyEvent(ctx, eng, exe, EventStart); err != nil {
		return nil, nil, err
	}
	return exe, OpActivityExecute, nil
}

// activityStartCreateScope creates the scope execution for a scope activity
// under the token that moves into it. The token waits for its scope child.
type activityStartCreateScope struct{}

func (activityStartCreateScope) Name() string { return "activity-start-create-scope" }

func (activityStartCreateScope) Execute(_ context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	scopeExe := exe.createExecution(exe.activity, true)
	exe.active = false
	return scopeExe, OpActivityStart, nil
}

// activityStart opens an activity instance on the execution.
type activityStart struct{}

func (activityStart) Name() string { return "activity-start" }

func (activityStart) Execute(ctx context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	if exe.ended {
		return nil, nil, &EngineError{Message: "cannot start activity on " + exe.id, Code: "EXECUTION_ENDED", Cause: ErrExecutionEnded}
	}
	if err := notifyEvent(ctx, exe.engineRef(), exe, EventStart); err != nil {
		return nil, nil, err
	}
	return exe, OpActivityExecute, nil
}

// activityExecute runs the behavior of the execution's activity.
type activityExecute struct{}

func (activityExecute) Name() string { return "activity-execute" }

func (activityExecute) Execute(ctx context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	return executeBehavior(ctx, exe)
}

// activityEnd closes the activity instance. A scope execution is removed and
// control returns to the token above it.
type activityEnd struct{}

func (activityEnd) Name() string { return "activity-end" }

func (activityEnd) Execute(ctx context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	if exe.activityInstanceID == "" {
		return nil, nil, &EngineError{Message: "execution " + exe.id + " has no open activity instance", Code: "NOT_IN_ACTIVITY"}
	}
	if err := notifyEvent(ctx, exe.engineRef(), exe, EventEnd); err != nil {
		return nil, nil, err
	}

	switch {
	case exe.parent == nil:
		return exe, OpProcessEnd, nil
	case exe.scope:
		parent := exe.parent
		parent.removeChild(exe)
		parent.active = true
		return parent, OpActivityLeave, nil
	default:
		return exe, OpActivityLeave, nil
	}
}

// activityLeave moves a token off a completed activity: along the first
// matching outgoing transition, along all of them for a parallel gateway, back
// to the multi-instance body for an inner activity, or to its end.
type activityLeave struct{}

func (activityLeave) Name() string { return "activity-leave" }

func (activityLeave) Execute(_ context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	a := exe.activity
	if a.IsMultiInstanceInner() {
		return exe, OpMultiInstanceNext, nil
	}
	if len(a.Outgoing) == 0 {
		return exe, OpTokenEnd, nil
	}

	if a.Behavior == BehaviorParallelGateway {
		if len(a.Outgoing) == 1 {
			exe.transition = a.Outgoing[0]
			return exe, OpTransitionTake, nil
		}
		return fork(exe, a.Outgoing)
	}

	mapping := exe.engineRef().mapping
	for _, t := range a.Outgoing {
		ok, err := mapping.Condition(exe, t)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			exe.transition = t
			return exe, OpTransitionTake, nil
		}
	}
	return nil, nil, &EngineError{
		Message: "no outgoing transition of " + a.ID + " matched",
		Code:    "NO_TRANSITION",
	}
}

// transitionTake notifies take listeners and moves the token to the
// transition's destination.
type transitionTake struct{}

func (transitionTake) Name() string { return "transition-take" }

func (transitionTake) Execute(ctx context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	t := exe.transition
	if t == nil {
		return nil, nil, &EngineError{Message: "execution " + exe.id + " has no transition to take", Code: "NO_TRANSITION"}
	}
	eng := exe.engineRef()
	if err := notifyEvent(ctx, eng, exe, EventTake); err != nil {
		return nil, nil, err
	}
	eng.emit(exe, emit.MsgTransitionTake, "", map[string]interface{}{
		"transition_id": t.ID,
		"destination":   t.Destination.ID,
	})

	exe.activity = t.Destination
	exe.transition = nil
	return exe, enterOperation(t.Destination), nil
}

// tokenEnd removes a token that has nowhere left to go. The last token of a
// scope completes the scope.
type tokenEnd struct{}

func (tokenEnd) Name() string { return "token-end" }

func (tokenEnd) Execute(_ context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	parent := exe.parent
	if parent == nil {
		return exe, OpProcessEnd, nil
	}
	parent.removeChild(exe)

	switch len(parent.children) {
	case 0:
		parent.active = true
		return parent, OpScopeComplete, nil
	case 1:
		parent.children[0].concurrent = false
	}
	return exe, nil, nil
}

// scopeComplete ends a scope execution whose tokens have all ended.
type scopeComplete struct{}

func (scopeComplete) Name() string { return "scope-complete" }

func (scopeComplete) Execute(_ context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	if len(exe.children) > 0 {
		return nil, nil, &EngineError{Message: "scope " + exe.id + " still has children", Code: "SCOPE_NOT_COMPLETE"}
	}
	return exe, OpActivityEnd, nil
}

// multiInstanceNext accounts for a completed inner instance and either starts
// the next sequential instance or completes the body.
type multiInstanceNext struct{}

func (multiInstanceNext) Name() string { return "multi-instance-next" }

func (multiInstanceNext) Execute(_ context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	body := exe.parent
	bodyActivity := body.activity

	completed := intVariable(body, varNrOfCompletedInstances) + 1
	if err := body.SetVariableLocal(varNrOfCompletedInstances, completed); err != nil {
		return nil, nil, err
	}
	total := intVariable(body, varNrOfInstances)

	if bodyActivity.Sequential && completed < total {
		if err := exe.SetVariableLocal(varLoopCounter, completed); err != nil {
			return nil, nil, err
		}
		return exe, enterOperation(exe.activity), nil
	}

	body.removeChild(exe)
	switch len(body.children) {
	case 0:
		body.active = true
		return body, OpActivityEnd, nil
	case 1:
		body.children[0].concurrent = false
	}
	return exe, nil, nil
}

// processEnd marks the process instance ended.
type processEnd struct{}

func (processEnd) Name() string { return "process-end" }

func (processEnd) Execute(_ context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	exe.ended = true
	exe.active = false
	exe.engineRef().emit(exe, emit.MsgProcessEnd, "", nil)
	return exe, nil, nil
}
