package pvm

import (
	"context"
	"fmt"
)

// Execution is one token of control flow in a running process instance.
//
// Executions form a tree owned by the process instance (the root). A parent
// owns its children; children keep a back-reference to the parent for lookup
// and for the upward activity-instance propagation of scope activities.
//
// An execution is mutated only by the step chain currently positioned on it,
// so it carries no lock. Callers serialize access to one process instance.
type Execution struct {
	id       string
	activity *Activity

	scope      bool
	concurrent bool
	active     bool
	ended      bool

	// activityInstanceID is non-empty exactly while the execution sits inside
	// an activity instance.
	activityInstanceID string
	sequenceCounter    int64

	children        []*Execution
	parent          *Execution
	processInstance *Execution

	variables     map[string]interface{}
	variableNames []string

	// transition is the transition being taken, visible to take listeners.
	transition *Transition

	// inFlight is set while a step chain is positioned on this execution.
	inFlight bool

	// parentSynced records that the start of this execution's activity
	// instance was copied onto the parent; parentPrevID is the value it replaced.
	parentSynced bool
	parentPrevID string

	// Process instance (root) only.
	engine           *Engine
	definition       *ProcessDefinition
	chainCtx         context.Context
	agenda           []pendingStep
	pendingVariables map[string]interface{}
}

// ID returns the execution id.
func (e *Execution) ID() string { return e.id }

// Activity returns the activity the execution occupies, or nil.
func (e *Execution) Activity() *Activity { return e.activity }

// Parent returns the parent execution; nil for the process instance.
func (e *Execution) Parent() *Execution { return e.parent }

// ProcessInstance returns the root of the execution tree.
func (e *Execution) ProcessInstance() *Execution { return e.processInstance }

// Definition returns the process definition of the instance.
func (e *Execution) Definition() *ProcessDefinition { return e.processInstance.definition }

// Children returns a copy of the ordered child list.
func (e *Execution) Children() []*Execution {
	out := make([]*Execution, len(e.children))
	copy(out, e.children)
	return out
}

// IsScope reports whether the execution owns a variable and listener scope.
func (e *Execution) IsScope() bool { return e.scope }

// IsConcurrent reports whether the execution is one of several parallel siblings.
func (e *Execution) IsConcurrent() bool { return e.concurrent }

// IsActive reports whether the execution is currently carrying control flow.
// Executions waiting for their children or parked at a join are inactive.
func (e *Execution) IsActive() bool { return e.active }

// IsEnded reports whether the execution has finished.
func (e *Execution) IsEnded() bool { return e.ended }

// IsWaiting reports whether the execution is parked in a wait activity and
// can be resumed with Engine.Signal.
func (e *Execution) IsWaiting() bool {
	return !e.ended &&
		e.active &&
		e.activity != nil &&
		e.activity.Behavior == BehaviorWait &&
		e.activityInstanceID != "" &&
		len(e.children) == 0
}

// ActivityInstanceID returns the id of the open activity instance, or "".
func (e *Execution) ActivityInstanceID() string { return e.activityInstanceID }

// SetActivityInstanceID overwrites the activity instance id.
func (e *Execution) SetActivityInstanceID(id string) { e.activityInstanceID = id }

// SequenceCounter returns the execution's sequence counter.
func (e *Execution) SequenceCounter() int64 { return e.sequenceCounter }

// IncrementSequenceCounter advances the sequence counter by one.
func (e *Execution) IncrementSequenceCounter() { e.sequenceCounter++ }

// Transition returns the transition being taken, or nil.
func (e *Execution) Transition() *Transition { return e.transition }

// EnterActivityInstance opens a new activity instance for the current
// activity. The id is derived from the activity id, the execution id and the
// incremented sequence counter, so it is unique across the tree.
func (e *Execution) EnterActivityInstance() string {
	e.sequenceCounter++
	activityID := ""
	if e.activity != nil {
		activityID = e.activity.ID
	}
	e.activityInstanceID = fmt.Sprintf("%s:%s:%d", activityID, e.id, e.sequenceCounter)
	return e.activityInstanceID
}

// LeaveActivityInstance closes the open activity instance.
func (e *Execution) LeaveActivityInstance() {
	e.activityInstanceID = ""
}

// ExecuteIoMapping applies the activity's input mapping against the
// execution's own scope.
func (e *Execution) ExecuteIoMapping() error {
	eng := e.engineRef()
	if eng == nil {
		return nil
	}
	return eng.mapping.ExecuteInput(e)
}

// ScopeExecution returns the nearest self-or-ancestor that is a scope.
func (e *Execution) ScopeExecution() *Execution {
	for n := e; n != nil; n = n.parent {
		if n.scope {
			return n
		}
	}
	return nil
}

// Find returns the executions of the subtree positioned on activityID that
// have not ended, in depth-first order.
func (e *Execution) Find(activityID string) []*Execution {
	var out []*Execution
	e.Walk(func(n *Execution) {
		if !n.ended && n.activity != nil && n.activity.ID == activityID {
			out = append(out, n)
		}
	})
	return out
}

// Waiting returns every execution of the subtree that Engine.Signal can resume.
func (e *Execution) Waiting() []*Execution {
	var out []*Execution
	e.Walk(func(n *Execution) {
		if n.IsWaiting() {
			out = append(out, n)
		}
	})
	return out
}

// Walk calls fn for e and every descendant, depth first, parents before children.
func (e *Execution) Walk(fn func(*Execution)) {
	stack := []*Execution{e}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(n)
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
}

func (e *Execution) engineRef() *Engine {
	if e.processInstance == nil {
		return nil
	}
	return e.processInstance.engine
}

// createExecution appends a new active child positioned on activity. The child
// inherits the parent's sequence counter.
func (e *Execution) createExecution(activity *Activity, scope bool) *Execution {
	var id string
	if eng := e.engineRef(); eng != nil {
		id = eng.ids.NewID()
	}
	child := &Execution{
		id:              id,
		activity:        activity,
		scope:           scope,
		active:          true,
		sequenceCounter: e.sequenceCounter,
		parent:          e,
		processInstance: e.processInstance,
	}
	e.children = append(e.children, child)
	return child
}

// removeChild detaches child and marks it ended.
func (e *Execution) removeChild(child *Execution) {
	for i, c := range e.children {
		if c == child {
			e.children = append(e.children[:i], e.children[i+1:]...)
			break
		}
	}
	child.ended = true
	child.active = false
}

func (e *Execution) String() string {
	activityID := ""
	if e.activity != nil {
		activityID = e.activity.ID
	}
	return fmt.Sprintf("Execution[%s, activity=%s, instance=%s]", e.id, activityID, e.activityInstanceID)
}
