package pvm

import (
	"context"
	"fmt"
)

// BehaviorKind classifies what an activity does when an execution reaches it.
//
// The set is closed: the runtime dispatches on the kind rather than inspecting
// behavior implementations.
type BehaviorKind int

const (
	// BehaviorLeaf runs the activity's Action (if any) and completes immediately.
	BehaviorLeaf BehaviorKind = iota

	// BehaviorWait stops the step chain until Engine.Signal resumes it.
	BehaviorWait

	// BehaviorComposite owns child activities and completes when none of its
	// child tokens remain.
	BehaviorComposite

	// BehaviorParallelGateway joins all incoming transitions and forks across
	// all outgoing transitions.
	BehaviorParallelGateway

	// BehaviorMultiInstanceBody runs its single inner activity Cardinality times.
	BehaviorMultiInstanceBody

	// BehaviorEnd is a leaf without outgoing transitions.
	BehaviorEnd
)

var behaviorNames = map[BehaviorKind]string{
	BehaviorLeaf:              "leaf",
	BehaviorWait:              "wait",
	BehaviorComposite:         "composite",
	BehaviorParallelGateway:   "parallelGateway",
	BehaviorMultiInstanceBody: "multiInstanceBody",
	BehaviorEnd:               "end",
}

// String returns the kind name used in definitions and logs.
func (k BehaviorKind) String() string {
	if name, ok := behaviorNames[k]; ok {
		return name
	}
	return fmt.Sprintf("BehaviorKind(%d)", int(k))
}

// ParseBehaviorKind maps a definition name back to its kind.
func ParseBehaviorKind(name string) (BehaviorKind, error) {
	for kind, n := range behaviorNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown behavior %q", name)
}

// IsScopeOwning reports whether activities of this kind contain sub-activities
// and therefore own a logical scope distinct from the execution that enters them.
func (k BehaviorKind) IsScopeOwning() bool {
	return k == BehaviorComposite || k == BehaviorMultiInstanceBody
}

// Parameter is one input or output variable mapping: Name receives the value
// of Expression.
type Parameter struct {
	Name       string
	Expression string
}

// Transition connects two activities of the same flow scope.
type Transition struct {
	ID          string
	Source      *Activity
	Destination *Activity

	// Condition is an expression over the visible variables that must
	// evaluate to a bool. Empty means unconditional.
	Condition string
}

// Activity is a node of a process graph.
//
// Activities are built once, then shared read-only by every process instance
// of the definition.
type Activity struct {
	ID       string
	Name     string
	Scope    bool
	Behavior BehaviorKind

	// Parent is the flow scope containing this activity; nil for the root.
	Parent *Activity

	// Activities are the children of a composite or multi-instance body.
	Activities []*Activity

	// Initial is the child a composite starts with.
	Initial *Activity

	Outgoing []*Transition
	Incoming []*Transition

	InputMapping  []Parameter
	OutputMapping []Parameter

	// Cardinality and Sequential configure a multi-instance body.
	Cardinality int
	Sequential  bool

	// Action is an optional hook run by leaf activities.
	Action func(ctx context.Context, exe *Execution) error
}

// NewActivity creates an activity. Scope-owning kinds are scopes.
func NewActivity(id string, kind BehaviorKind) *Activity {
	return &Activity{
		ID:       id,
		Behavior: kind,
		Scope:    kind.IsScopeOwning(),
	}
}

// AddActivity appends child to a's children and returns the child.
// The first child added becomes the initial activity.
func (a *Activity) AddActivity(child *Activity) *Activity {
	child.Parent = a
	a.Activities = append(a.Activities, child)
	if a.Initial == nil {
		a.Initial = child
	}
	return child
}

// Connect adds a transition from a to destination and returns it.
func (a *Activity) Connect(id string, destination *Activity, condition string) *Transition {
	t := &Transition{
		ID:          id,
		Source:      a,
		Destination: destination,
		Condition:   condition,
	}
	a.Outgoing = append(a.Outgoing, t)
	destination.Incoming = append(destination.Incoming, t)
	return t
}

// FindActivity searches a and its descendants for id.
func (a *Activity) FindActivity(id string) *Activity {
	if a.ID == id {
		return a
	}
	for _, child := range a.Activities {
		if found := child.FindActivity(id); found != nil {
			return found
		}
	}
	return nil
}

// IsMultiInstanceInner reports whether a is the inner activity of a
// multi-instance body.
func (a *Activity) IsMultiInstanceInner() bool {
	return a.Parent != nil && a.Parent.Behavior == BehaviorMultiInstanceBody
}

// ProcessDefinition is an immutable process graph.
type ProcessDefinition struct {
	ID   string
	Key  string
	Name string

	// Root is the composite scope activity the process instance occupies.
	Root *Activity
}

// NewProcessDefinition creates a definition whose root composite activity has
// the given key as id.
func NewProcessDefinition(key string) *ProcessDefinition {
	return &ProcessDefinition{
		ID:   key,
		Key:  key,
		Name: key,
		Root: NewActivity(key, BehaviorComposite),
	}
}

// Validate checks the structural rules the runtime relies on.
func (d *ProcessDefinition) Validate() error {
	if d == nil || d.Root == nil {
		return &EngineError{Message: "process definition has no root activity", Code: "INVALID_DEFINITION"}
	}
	if d.Root.Behavior != BehaviorComposite {
		return &EngineError{
			Message: fmt.Sprintf("root activity %s must be composite, got %s", d.Root.ID, d.Root.Behavior),
			Code:    "INVALID_DEFINITION",
		}
	}
	seen := make(map[string]bool)
	return validateActivity(d.Root, seen)
}

func validateActivity(a *Activity, seen map[string]bool) error {
	invalid := func(format string, args ...interface{}) error {
		return &EngineError{Message: fmt.Sprintf(format, args...), Code: "INVALID_DEFINITION"}
	}

	if a.ID == "" {
		return invalid("activity without id")
	}
	if seen[a.ID] {
		return invalid("duplicate activity id %s", a.ID)
	}
	seen[a.ID] = true

	if a.Behavior.IsScopeOwning() && !a.Scope {
		return invalid("activity %s is %s and must be a scope", a.ID, a.Behavior)
	}

	switch a.Behavior {
	case BehaviorComposite:
		if len(a.Activities) > 0 && a.Initial == nil {
			return invalid("composite %s has no initial activity", a.ID)
		}
		if a.Initial != nil && a.Initial.Parent != a {
			return invalid("initial activity %s is not a child of %s", a.Initial.ID, a.ID)
		}
	case BehaviorMultiInstanceBody:
		if len(a.Activities) != 1 {
			return invalid("multi-instance body %s needs exactly one inner activity, got %d", a.ID, len(a.Activities))
		}
		if a.Cardinality < 0 {
			return invalid("multi-instance body %s has negative cardinality", a.ID)
		}
		if inner := a.Activities[0]; len(inner.Outgoing) > 0 || len(inner.Incoming) > 0 {
			return invalid("inner activity %s of %s cannot have transitions", inner.ID, a.ID)
		}
	case BehaviorParallelGateway:
		if a.Scope {
			return invalid("parallel gateway %s cannot be a scope", a.ID)
		}
		if len(a.Activities) > 0 {
			return invalid("parallel gateway %s cannot contain activities", a.ID)
		}
	case BehaviorEnd:
		if len(a.Outgoing) > 0 {
			return invalid("end activity %s cannot have outgoing transitions", a.ID)
		}
	default:
		if len(a.Activities) > 0 {
			return invalid("%s activity %s cannot contain activities", a.Behavior, a.ID)
		}
	}

	for _, t := range a.Outgoing {
		if t.Destination == nil {
			return invalid("transition %s of %s has no destination", t.ID, a.ID)
		}
		if t.Destination.Parent != a.Parent {
			return invalid("transition %s leaves the flow scope of %s", t.ID, a.ID)
		}
	}

	for _, child := range a.Activities {
		if child.Parent != a {
			return invalid("activity %s has wrong parent", child.ID)
		}
		if err := validateActivity(child, seen); err != nil {
			return err
		}
	}
	return nil
}
