package definition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/expr-lang/expr"
	"gopkg.in/yaml.v3"

	"github.com/dshills/procvm/pvm"
)

// Action is the hook a leaf activity runs, registered under a name that
// documents reference with "action".
type Action func(ctx context.Context, exe *pvm.Execution) error

// Loader turns documents into process definitions.
type Loader struct {
	actions map[string]Action
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithAction registers fn under name.
func WithAction(name string, fn Action) LoaderOption {
	return func(l *Loader) {
		l.actions[name] = fn
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{actions: make(map[string]Action)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile reads and builds the definition stored at path.
func (l *Loader) LoadFile(path string) (*pvm.ProcessDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return l.parse(path, data)
}

// Load reads and builds a definition from r.
func (l *Loader) Load(r io.Reader) (*pvm.ProcessDefinition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Path: "<reader>", Err: err}
	}
	return l.parse("<reader>", data)
}

func (l *Loader) parse(path string, data []byte) (*pvm.ProcessDefinition, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty document")
		}
		return nil, &ParseError{Path: path, Line: extractLine(err), Err: err}
	}
	return l.Build(&doc)
}

// Build validates doc and converts it into a process definition.
func (l *Loader) Build(doc *Document) (*pvm.ProcessDefinition, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	def := pvm.NewProcessDefinition(doc.Key)
	if doc.Name != "" {
		def.Name = doc.Name
	}

	b := &builder{loader: l, byID: map[string]*pvm.Activity{doc.Key: def.Root}}
	if err := b.addChildren(def.Root, doc.Activities, "activities", ""); err != nil {
		return nil, err
	}
	for _, pending := range b.transitions {
		if err := b.connect(pending); err != nil {
			return nil, err
		}
	}

	if err := def.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error(), Err: err}
	}
	return def, nil
}

type pendingTransition struct {
	source *pvm.Activity
	decl   Transition
	field  string
}

type builder struct {
	loader      *Loader
	byID        map[string]*pvm.Activity
	transitions []pendingTransition
}

func (b *builder) addChildren(parent *pvm.Activity, decls []Activity, field, initial string) error {
	for i, decl := range decls {
		path := field + "[" + strconv.Itoa(i) + "]"
		if _, dup := b.byID[decl.ID]; dup {
			return &ValidationError{Field: path + ".id", Message: "duplicate activity id " + decl.ID}
		}

		kind, err := pvm.ParseBehaviorKind(decl.Type)
		if err != nil {
			return &ValidationError{Field: path + ".type", Message: err.Error(), Err: err}
		}
		a := pvm.NewActivity(decl.ID, kind)
		a.Name = decl.Name
		a.Scope = a.Scope || decl.Scope
		a.Cardinality = decl.Cardinality
		a.Sequential = decl.Sequential

		if decl.Action != "" {
			fn, ok := b.loader.actions[decl.Action]
			if !ok {
				return &ValidationError{Field: path + ".action", Message: "unknown action " + decl.Action}
			}
			a.Action = fn
		}

		if a.InputMapping, err = parameters(decl.Input, path+".input"); err != nil {
			return err
		}
		if a.OutputMapping, err = parameters(decl.Output, path+".output"); err != nil {
			return err
		}

		parent.AddActivity(a)
		b.byID[decl.ID] = a

		for j, t := range decl.Transitions {
			b.transitions = append(b.transitions, pendingTransition{
				source: a,
				decl:   t,
				field:  path + ".transitions[" + strconv.Itoa(j) + "]",
			})
		}

		if err := b.addChildren(a, decl.Activities, path+".activities", decl.Initial); err != nil {
			return err
		}
	}

	if initial != "" {
		a, ok := b.byID[initial]
		if !ok || a.Parent != parent {
			return &ValidationError{Field: field, Message: "initial activity " + initial + " is not a child of " + parent.ID}
		}
		parent.Initial = a
	}
	return nil
}

func (b *builder) connect(p pendingTransition) error {
	dest, ok := b.byID[p.decl.To]
	if !ok {
		return &ValidationError{Field: p.field + ".to", Message: "unknown activity " + p.decl.To}
	}
	if p.decl.Condition != "" {
		if err := compiles(p.decl.Condition); err != nil {
			return &ValidationError{Field: p.field + ".condition", Message: err.Error(), Err: err}
		}
	}
	id := p.decl.ID
	if id == "" {
		id = p.source.ID + "-" + dest.ID
	}
	p.source.Connect(id, dest, p.decl.Condition)
	return nil
}

func parameters(decls []Parameter, field string) ([]pvm.Parameter, error) {
	if len(decls) == 0 {
		return nil, nil
	}
	out := make([]pvm.Parameter, 0, len(decls))
	for i, s := range decls {
		if err := compiles(s.Expression); err != nil {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("%s[%d].expression", field, i),
				Message: err.Error(),
				Err:     err,
			}
		}
		out = append(out, pvm.Parameter{Name: s.Name, Expression: s.Expression})
	}
	return out, nil
}

// compiles checks expression syntax without an environment; unknown
// variables are resolved at run time.
func compiles(expression string) error {
	_, err := expr.Compile(expression)
	return err
}

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

func extractLine(err error) int {
	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}
	line, convErr := strconv.Atoi(matches[1])
	if convErr != nil {
		return 0
	}
	return line
}
