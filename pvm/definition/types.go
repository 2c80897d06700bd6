// Package definition loads process definitions from YAML documents.
//
// A document describes the root flow scope of a process:
//
//	key: order
//	activities:
//	  - id: review
//	    type: wait
//	    transitions:
//	      - to: approved
//	        condition: amount <= 1000
//	      - to: escalate
//	  - id: approved
//	    type: end
//	  - id: escalate
//	    type: composite
//	    activities:
//	      - id: manager
//	        type: wait
//
// The first activity of every flow scope is its initial activity unless the
// scope names one with "initial".
package definition

// Document is the YAML form of a process definition.
type Document struct {
	Key        string     `yaml:"key" validate:"required,activity_id"`
	Name       string     `yaml:"name"`
	Activities []Activity `yaml:"activities" validate:"required,min=1,dive"`
}

// Activity is the YAML form of one activity and, for composites and
// multi-instance bodies, its children.
type Activity struct {
	ID   string `yaml:"id" validate:"required,activity_id"`
	Name string `yaml:"name"`
	Type string `yaml:"type" validate:"required,behavior"`

	// Scope forces a scope execution for a non-composite activity.
	Scope bool `yaml:"scope"`

	// Action names a registered action run by leaf activities.
	Action string `yaml:"action"`

	Initial     string `yaml:"initial"`
	Cardinality int    `yaml:"cardinality" validate:"gte=0"`
	Sequential  bool   `yaml:"sequential"`

	Input       []Parameter  `yaml:"input" validate:"dive"`
	Output      []Parameter  `yaml:"output" validate:"dive"`
	Transitions []Transition `yaml:"transitions" validate:"dive"`
	Activities  []Activity   `yaml:"activities" validate:"dive"`
}

// Parameter maps the value of Expression to the variable Name.
type Parameter struct {
	Name       string `yaml:"name" validate:"required"`
	Expression string `yaml:"expression" validate:"required"`
}

// Transition leaves the enclosing activity towards To. An empty ID becomes
// "<source>-<to>".
type Transition struct {
	ID        string `yaml:"id"`
	To        string `yaml:"to" validate:"required"`
	Condition string `yaml:"condition"`
}
