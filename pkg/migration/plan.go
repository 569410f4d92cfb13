// Package migration compiles declarative YAML migration plans into the
// migration table consumed by settings.New.
//
// A plan lists, per source version n, the operations that reshape an object
// at version n into version n+1:
//
//	version: 3
//	defaults:
//	  silentCall: {enabled: false, default: false, users: {}}
//	steps:
//	  1:
//	    ops:
//	      - {op: rename, path: silent, to: silentCall.enabled}
//	  2:
//	    ops:
//	      - {op: default, path: rememberOutputDevice.enabled, value: false}
//	      - {op: set, path: silentCall.default, expr: "silentCall.enabled", when: "silentCall.default == nil"}
//
// Operations use the same dotted path semantics as the manager.
package migration

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	settings "github.com/goliatone/go-settings"
	"gopkg.in/yaml.v3"
)

var ErrInvalidPlan = errors.New("migration: invalid plan")

// Kind names an operation.
type Kind string

const (
	// KindSet writes Value, or the result of Expr, at Path.
	KindSet Kind = "set"
	// KindDefault is KindSet applied only when Path is absent.
	KindDefault Kind = "default"
	// KindRename moves the value at Path to To. Absent paths are skipped.
	KindRename Kind = "rename"
	// KindDelete removes Path.
	KindDelete Kind = "delete"
)

// Plan is a parsed migration plan.
type Plan struct {
	Plugin   string         `yaml:"plugin,omitempty"`
	Version  int            `yaml:"version"`
	Defaults map[string]any `yaml:"defaults,omitempty"`
	Steps    map[int]Step   `yaml:"steps,omitempty"`
}

// Step upgrades an object from its map key version to the next one.
type Step struct {
	Description string `yaml:"description,omitempty"`
	Ops         []Op   `yaml:"ops"`
}

// Op is one operation of a step. When, if set, must evaluate to a boolean;
// false skips the operation.
type Op struct {
	Op    Kind   `yaml:"op"`
	Path  string `yaml:"path"`
	To    string `yaml:"to,omitempty"`
	Value any    `yaml:"value,omitempty"`
	Expr  string `yaml:"expr,omitempty"`
	When  string `yaml:"when,omitempty"`
}

// ParsePlan decodes and validates a YAML plan. Unknown fields are rejected.
func ParsePlan(data []byte) (*Plan, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var plan Plan
	if err := decoder.Decode(&plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// LoadPlan reads and parses the plan stored at path.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("migration: reading plan: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return plan, nil
}

// Validate checks the plan shape without compiling expressions.
func (p *Plan) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}
	if p.Version < 1 {
		return fmt.Errorf("%w: version %d must be >= 1", ErrInvalidPlan, p.Version)
	}
	if _, ok := p.Defaults[settings.VersionKey]; ok {
		return fmt.Errorf("%w: defaults must not carry %q", ErrInvalidPlan, settings.VersionKey)
	}
	if !settings.IsSerializable(p.Defaults) {
		return fmt.Errorf("%w: defaults are not serializable", ErrInvalidPlan)
	}
	for _, from := range p.stepVersions() {
		if from < 1 || from >= p.Version {
			return fmt.Errorf("%w: step %d outside 1..%d", ErrInvalidPlan, from, p.Version-1)
		}
		for i, op := range p.Steps[from].Ops {
			if err := op.validate(); err != nil {
				return &OpError{Step: from, Index: i, Op: op.Op, Err: err}
			}
		}
	}
	return nil
}

func (p *Plan) stepVersions() []int {
	versions := make([]int, 0, len(p.Steps))
	for from := range p.Steps {
		versions = append(versions, from)
	}
	sort.Ints(versions)
	return versions
}

func (o Op) validate() error {
	from, err := settings.ParsePath(o.Path)
	if err != nil {
		return err
	}
	switch o.Op {
	case KindSet, KindDefault:
		if o.Expr != "" && o.Value != nil {
			return fmt.Errorf("%w: value and expr are exclusive", ErrInvalidPlan)
		}
		if !settings.IsSerializable(o.Value) {
			return fmt.Errorf("%w: value is not serializable", ErrInvalidPlan)
		}
	case KindRename:
		to, err := settings.ParsePath(o.To)
		if err != nil {
			return fmt.Errorf("rename target: %w", err)
		}
		// Overlapping paths would lose the moved value.
		switch {
		case to.HasPrefix(from) && from.HasPrefix(to):
			return fmt.Errorf("%w: rename onto itself", ErrInvalidPlan)
		case to.HasPrefix(from):
			return fmt.Errorf("%w: rename %q into its own subtree %q", ErrInvalidPlan, o.Path, o.To)
		case from.HasPrefix(to):
			return fmt.Errorf("%w: rename %q onto its ancestor %q", ErrInvalidPlan, o.Path, o.To)
		}
	case KindDelete:
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidPlan, o.Op)
	}
	return nil
}

// OpError locates a failing operation within a plan.
type OpError struct {
	Step  int
	Index int
	Op    Kind
	Err   error
}

func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("migration: step %d op %d (%s): %v", e.Step, e.Index, e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
