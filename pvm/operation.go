package pvm

import (
	"context"
	"time"

	"github.com/dshills/procvm/pvm/emit"
)

// AtomicOperation is one indivisible state transition of an execution.
//
// Operations are stateless singletons; all mutable state lives on the
// executions. Execute returns the execution to continue on (which may differ
// from exe, for example a parent when a scope closes or a newly created child)
// and the operation to run there. A nil operation ends the step chain.
type AtomicOperation interface {
	Name() string
	Execute(ctx context.Context, exe *Execution) (*Execution, AtomicOperation, error)
}

// pendingStep is a branch queued on the process instance by a fork. Each is
// driven as a chain of its own once the chain that queued it goes idle.
type pendingStep struct {
	exe *Execution
	op  AtomicOperation
}

// perform is the trampoline: it applies op to exe and keeps applying the
// returned (execution, operation) pairs until no operation remains.
//
// The loop never recurses, so the stack depth is independent of how many
// operations a chain runs. The execution the chain is positioned on is marked
// in flight; starting on, or hopping into, an execution that is already in
// flight fails with ErrIllegalReentrancy before anything is mutated. Any error
// aborts the chain immediately.
func (e *Engine) perform(ctx context.Context, exe *Execution, op AtomicOperation) error {
	if exe == nil || op == nil {
		return &EngineError{Message: "execution and operation are required", Code: "INVALID_ARGUMENT"}
	}
	if exe.engineRef() != e {
		return &EngineError{Message: "execution " + exe.id + " belongs to another engine", Code: "INVALID_ARGUMENT"}
	}
	if exe.inFlight {
		return e.reentrancyError(exe, op)
	}

	root := exe.processInstance
	base := len(root.agenda)
	prevCtx := root.chainCtx
	root.chainCtx = ctx

	current := exe
	current.inFlight = true
	defer func() {
		current.inFlight = false
		root.chainCtx = prevCtx
	}()

	start := time.Now()
	steps := 0
	for {
		steps++

		if e.maxSteps > 0 && steps > e.maxSteps {
			root.agenda = root.agenda[:base]
			return e.chainFailed(current, op, &EngineError{
				Message: "step chain exceeded MaxSteps limit",
				Code:    "MAX_STEPS_EXCEEDED",
				Cause:   ErrMaxStepsExceeded,
			})
		}

		select {
		case <-ctx.Done():
			root.agenda = root.agenda[:base]
			return e.chainFailed(current, op, ctx.Err())
		default:
		}

		e.logger.Debug().
			Str("process_instance_id", root.id).
			Str("execution_id", current.id).
			Str("operation", op.Name()).
			Int("step", steps).
			Msg("atomic operation")
		e.metrics.RecordOperation(op.Name())
		e.emit(current, emit.MsgOperation, current.activityInstanceID, map[string]interface{}{
			"operation": op.Name(),
		})

		next, nextOp, err := op.Execute(ctx, current)
		if err != nil {
			root.agenda = root.agenda[:base]
			return e.chainFailed(current, op, err)
		}

		if nextOp == nil {
			step, ok := root.popPending(base)
			if !ok {
				e.metrics.RecordChain(steps, time.Since(start))
				return nil
			}
			next, nextOp = step.exe, step.op
		}

		if next == nil {
			root.agenda = root.agenda[:base]
			return e.chainFailed(current, op, &EngineError{
				Message: "operation " + op.Name() + " returned no execution",
				Code:    "INVALID_OPERATION",
			})
		}
		if next != current {
			current.inFlight = false
			if next.inFlight {
				root.agenda = root.agenda[:base]
				return e.reentrancyError(next, nextOp)
			}
			next.inFlight = true
			current = next
		}
		op = nextOp
	}
}

// schedule queues a branch to run after the current chain goes idle.
func (e *Execution) schedule(exe *Execution, op AtomicOperation) {
	root := e.processInstance
	root.agenda = append(root.agenda, pendingStep{exe: exe, op: op})
}

// popPending removes the oldest branch queued at or after index base.
func (e *Execution) popPending(base int) (pendingStep, bool) {
	if len(e.agenda) <= base {
		return pendingStep{}, false
	}
	step := e.agenda[base]
	e.agenda = append(e.agenda[:base], e.agenda[base+1:]...)
	return step, true
}

func (e *Execution) historyContext() context.Context {
	if e.chainCtx != nil {
		return e.chainCtx
	}
	return context.Background()
}

func (e *Engine) reentrancyError(exe *Execution, op AtomicOperation) error {
	e.metrics.RecordReentrancyRejection()
	e.logger.Error().
		Str("execution_id", exe.id).
		Str("operation", op.Name()).
		Msg("rejected step chain on execution already in flight")
	return &EngineError{
		Message: "execution " + exe.id + " already has a step chain in flight (operation " + op.Name() + ")",
		Code:    "ILLEGAL_REENTRANCY",
		Cause:   ErrIllegalReentrancy,
	}
}

func (e *Engine) chainFailed(exe *Execution, op AtomicOperation, err error) error {
	e.logger.Warn().
		Err(err).
		Str("process_instance_id", exe.processInstance.id).
		Str("execution_id", exe.id).
		Str("operation", op.Name()).
		Msg("step chain aborted")
	e.emit(exe, emit.MsgStepChainFailed, exe.activityInstanceID, map[string]interface{}{
		"operation": op.Name(),
		"error":     err.Error(),
	})
	return err
}
