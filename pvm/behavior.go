package pvm

import (
	"context"

	"github.com/dshills/procvm/pvm/emit"
)

// Local variables maintained on a multi-instance body and its instances.
const (
	varNrOfInstances          = "nrOfInstances"
	varNrOfCompletedInstances = "nrOfCompletedInstances"
	varLoopCounter            = "loopCounter"
)

// executeBehavior dispatches on the behavior kind of exe's activity.
func executeBehavior(ctx context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	a := exe.activity
	switch a.Behavior {
	case BehaviorLeaf:
		if a.Action != nil {
			if err := a.Action(ctx, exe); err != nil {
				return nil, nil, &EngineError{
					Message: "action of activity " + a.ID + " failed",
					Code:    "ACTION_FAILED",
					Cause:   err,
				}
			}
		}
		return exe, OpActivityEnd, nil
	case BehaviorEnd:
		return exe, OpActivityEnd, nil
	case BehaviorWait:
		return exe, nil, nil
	case BehaviorComposite:
		return executeComposite(exe)
	case BehaviorParallelGateway:
		return executeParallelGateway(ctx, exe)
	case BehaviorMultiInstanceBody:
		return executeMultiInstance(exe)
	default:
		return nil, nil, &EngineError{Message: "unsupported behavior " + a.Behavior.String(), Code: "INVALID_DEFINITION"}
	}
}

// executeComposite spawns a non-scope token for the initial child activity.
func executeComposite(exe *Execution) (*Execution, AtomicOperation, error) {
	initial := exe.activity.Initial
	if initial == nil {
		return exe, OpActivityEnd, nil
	}
	token := exe.createExecution(initial, false)
	exe.active = false
	return token, enterOperation(initial), nil
}

// executeParallelGateway parks an arriving token until every incoming
// transition has delivered one, then keeps the arriving token and prunes the
// others. A gateway with a single incoming transition passes straight through.
func executeParallelGateway(ctx context.Context, exe *Execution) (*Execution, AtomicOperation, error) {
	gateway := exe.activity
	required := len(gateway.Incoming)
	if required <= 1 {
		return exe, OpActivityEnd, nil
	}

	exe.active = false
	parent := exe.parent

	joined := []*Execution{exe}
	for _, c := range parent.children {
		if len(joined) == required {
			break
		}
		if c != exe && c.activity == gateway && !c.active && !c.ended && len(c.children) == 0 {
			joined = append(joined, c)
		}
	}
	if len(joined) < required {
		return exe, nil, nil
	}

	eng := exe.engineRef()
	for _, c := range joined[1:] {
		if err := leaveActivityInstance(ctx, eng, c); err != nil {
			return nil, nil, err
		}
		parent.removeChild(c)
	}
	eng.emit(exe, emit.MsgOperation, exe.activityInstanceID, map[string]interface{}{
		"operation": "join",
		"joined":    len(joined),
	})

	exe.active = true
	if len(parent.children) == 1 {
		exe.concurrent = false
	}
	return exe, OpActivityEnd, nil
}

// fork replaces exe with one concurrent token per transition. The first token
// continues this chain; the others are queued as chains of their own.
func fork(exe *Execution, transitions []*Transition) (*Execution, AtomicOperation, error) {
	parent := exe.parent

	tokens := make([]*Execution, 0, len(transitions))
	for _, t := range transitions {
		token := parent.createExecution(exe.activity, false)
		token.transition = t
		tokens = append(tokens, token)
	}
	parent.removeChild(exe)

	for _, c := range parent.children {
		c.concurrent = len(parent.children) > 1
	}

	for _, token := range tokens[1:] {
		exe.schedule(token, OpTransitionTake)
	}
	return tokens[0], OpTransitionTake, nil
}

// executeMultiInstance initializes the body's bookkeeping variables and
// creates the first (sequential) or every (parallel) inner instance.
func executeMultiInstance(body *Execution) (*Execution, AtomicOperation, error) {
	a := body.activity
	total := a.Cardinality

	if err := body.SetVariableLocal(varNrOfInstances, total); err != nil {
		return nil, nil, err
	}
	if err := body.SetVariableLocal(varNrOfCompletedInstances, 0); err != nil {
		return nil, nil, err
	}
	if total == 0 {
		return body, OpActivityEnd, nil
	}

	inner := a.Activities[0]
	body.active = false

	instances := 1
	if !a.Sequential {
		instances = total
	}

	created := make([]*Execution, 0, instances)
	for i := 0; i < instances; i++ {
		instance := body.createExecution(inner, false)
		instance.concurrent = instances > 1
		if err := instance.SetVariableLocal(varLoopCounter, i); err != nil {
			return nil, nil, err
		}
		created = append(created, instance)
	}

	for _, instance := range created[1:] {
		body.schedule(instance, enterOperation(inner))
	}
	return created[0], enterOperation(inner), nil
}

func intVariable(exe *Execution, name string) int {
	v, _ := exe.VariableLocal(name)
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
