package pvm

import (
	"sort"

	"github.com/dshills/procvm/pvm/emit"
	"github.com/dshills/procvm/pvm/history"
)

// Variable looks name up on e and then on its ancestors.
func (e *Execution) Variable(name string) (interface{}, bool) {
	for n := e; n != nil; n = n.parent {
		if v, ok := n.variables[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// VariableLocal looks name up on e only.
func (e *Execution) VariableLocal(name string) (interface{}, bool) {
	v, ok := e.variables[name]
	return v, ok
}

// VariablesLocal returns a copy of the variables stored on e.
func (e *Execution) VariablesLocal() map[string]interface{} {
	out := make(map[string]interface{}, len(e.variables))
	for k, v := range e.variables {
		out[k] = v
	}
	return out
}

// Variables returns every variable visible from e. Closer definitions shadow
// those of ancestors.
func (e *Execution) Variables() map[string]interface{} {
	out := make(map[string]interface{})
	for n := e; n != nil; n = n.parent {
		for k, v := range n.variables {
			if _, shadowed := out[k]; !shadowed {
				out[k] = v
			}
		}
	}
	return out
}

// VariableNamesLocal returns the names stored on e in first-write order.
func (e *Execution) VariableNamesLocal() []string {
	out := make([]string, len(e.variableNames))
	copy(out, e.variableNames)
	return out
}

// SetVariableLocal stores name on e. The write is attributed to e's own
// activity instance.
func (e *Execution) SetVariableLocal(name string, value interface{}) error {
	e.putVariable(name, value)
	return e.recordVariableUpdate(name, value, ResolveAttribution(e, true))
}

// SetVariable updates name where it is already defined on e or an ancestor.
// A new variable is stored on the process instance and attributed to its
// activity instance, so it outlives the scope it was written from.
func (e *Execution) SetVariable(name string, value interface{}) error {
	return setVariableFrom(e, name, value)
}

// SetVariables applies SetVariable for every entry, in name order.
func (e *Execution) SetVariables(vars map[string]interface{}) error {
	for _, name := range sortedNames(vars) {
		if err := e.SetVariable(name, vars[name]); err != nil {
			return err
		}
	}
	return nil
}

func setVariableFrom(start *Execution, name string, value interface{}) error {
	for n := start; n != nil; n = n.parent {
		if _, ok := n.variables[name]; ok {
			n.putVariable(name, value)
			return n.recordVariableUpdate(name, value, ResolveAttribution(n, true))
		}
	}

	root := start.processInstance
	if root == nil {
		root = start
	}
	root.putVariable(name, value)
	return root.recordVariableUpdate(name, value, ResolveAttribution(root, true))
}

func (e *Execution) putVariable(name string, value interface{}) {
	if e.variables == nil {
		e.variables = make(map[string]interface{})
	}
	if _, exists := e.variables[name]; !exists {
		e.variableNames = append(e.variableNames, name)
	}
	e.variables[name] = value
}

// recordVariableUpdate hands the write to the history sink and the emitter.
// A token written between two activities has no instance of its own; its
// writes fall back to the enclosing scope's instance.
func (e *Execution) recordVariableUpdate(name string, value interface{}, attribution string) error {
	eng := e.engineRef()
	if eng == nil {
		return nil
	}
	if attribution == "" {
		attribution = ResolveAttribution(e, false)
	}

	if eng.history != nil {
		err := eng.history.RecordVariableUpdate(e.processInstance.historyContext(), history.VariableUpdate{
			ID:                 eng.ids.NewID(),
			ProcessInstanceID:  e.processInstance.id,
			ExecutionID:        e.id,
			ActivityInstanceID: attribution,
			Name:               name,
			Value:              value,
			SequenceCounter:    e.sequenceCounter,
			Timestamp:          eng.clock(),
		})
		if err != nil {
			return &EngineError{
				Message: "failed to record variable update " + name,
				Code:    "HISTORY_ERROR",
				Cause:   err,
			}
		}
	}

	eng.emit(e, emit.MsgVariableUpdate, attribution, map[string]interface{}{
		"variable": name,
	})
	return nil
}

func sortedNames(vars map[string]interface{}) []string {
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
