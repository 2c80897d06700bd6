package pvm

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// MappingExecutor evaluates input/output mappings and transition conditions
// with expr. Compiled programs are cached by source text; the cache is safe
// for concurrent use by several process instances.
type MappingExecutor struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewMappingExecutor creates an executor with an empty program cache.
func NewMappingExecutor() *MappingExecutor {
	return &MappingExecutor{
		programs: make(map[string]*vm.Program),
	}
}

func (m *MappingExecutor) program(expression string) (*vm.Program, error) {
	m.mu.RLock()
	p, ok := m.programs[expression]
	m.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := expr.Compile(expression)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.programs[expression] = p
	m.mu.Unlock()
	return p, nil
}

// Evaluate runs expression against env.
func (m *MappingExecutor) Evaluate(expression string, env map[string]interface{}) (interface{}, error) {
	p, err := m.program(expression)
	if err != nil {
		return nil, err
	}
	return expr.Run(p, env)
}

// EvaluateCondition runs expression against env and requires a bool result.
func (m *MappingExecutor) EvaluateCondition(expression string, env map[string]interface{}) (bool, error) {
	out, err := m.Evaluate(expression, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition evaluated to %T, want bool", out)
	}
	return b, nil
}

// ExecuteInput applies the input mapping of exe's activity. Values are
// written local to exe's scope execution, which for a non-scope token is the
// nearest scope ancestor.
func (m *MappingExecutor) ExecuteInput(exe *Execution) error {
	if exe.activity == nil || len(exe.activity.InputMapping) == 0 {
		return nil
	}
	target := exe.ScopeExecution()
	for _, param := range exe.activity.InputMapping {
		value, err := m.Evaluate(param.Expression, exe.Variables())
		if err != nil {
			return m.mappingError(exe, param, err)
		}
		if err := target.SetVariableLocal(param.Name, value); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteOutput applies the output mapping of exe's activity. Expressions see
// exe's variables; results are written with SetVariable semantics starting
// above the activity's own scope.
func (m *MappingExecutor) ExecuteOutput(exe *Execution) error {
	if exe.activity == nil || len(exe.activity.OutputMapping) == 0 {
		return nil
	}
	start := exe.ScopeExecution()
	if exe.scope && exe.parent != nil {
		start = exe.parent
	}
	for _, param := range exe.activity.OutputMapping {
		value, err := m.Evaluate(param.Expression, exe.Variables())
		if err != nil {
			return m.mappingError(exe, param, err)
		}
		if err := setVariableFrom(start, param.Name, value); err != nil {
			return err
		}
	}
	return nil
}

// Condition evaluates the condition of t for exe. An empty condition holds.
func (m *MappingExecutor) Condition(exe *Execution, t *Transition) (bool, error) {
	if t.Condition == "" {
		return true, nil
	}
	ok, err := m.EvaluateCondition(t.Condition, exe.Variables())
	if err != nil {
		return false, m.mappingError(exe, Parameter{Name: "transition " + t.ID, Expression: t.Condition}, err)
	}
	return ok, nil
}

func (m *MappingExecutor) mappingError(exe *Execution, param Parameter, err error) error {
	activityID := ""
	if exe.activity != nil {
		activityID = exe.activity.ID
	}
	return &MappingError{
		ActivityID:  activityID,
		ExecutionID: exe.id,
		Target:      param.Name,
		Expression:  param.Expression,
		Cause:       err,
	}
}
