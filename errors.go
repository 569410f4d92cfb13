package settings

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedDowngrade indicates the persisted version is newer than the
	// version the running code supports.
	ErrUnsupportedDowngrade = errors.New("settings: unsupported downgrade")
	// ErrInvalidVersion indicates a target or stored version that is not a
	// usable integer.
	ErrInvalidVersion = errors.New("settings: invalid version")
	// ErrInitializerRequired indicates a Config without a default factory.
	ErrInitializerRequired = errors.New("settings: initializer is required")
	// ErrMissingMigration indicates a hole in the migration table.
	ErrMissingMigration = errors.New("settings: missing migration")

	// ErrInvalidPath indicates an empty path or an empty path segment.
	ErrInvalidPath = errors.New("settings: invalid path")
	// ErrStructuralMismatch indicates Set had to descend into a scalar.
	ErrStructuralMismatch = errors.New("settings: structural mismatch")
	// ErrPathNotFound indicates a read that requires the path to exist.
	ErrPathNotFound = errors.New("settings: path not found")
	// ErrIndexOutOfRange indicates a sequence segment outside the sequence.
	ErrIndexOutOfRange = errors.New("settings: index out of range")
	// ErrNotSerializable indicates a value outside the serializable shape.
	ErrNotSerializable = errors.New("settings: value is not serializable")
)

// ConfigurationError reports a construction input the manager cannot honour.
// A manager is never returned alongside one.
type ConfigurationError struct {
	Plugin        string
	StoredVersion int
	TargetVersion int
	Err           error
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("settings: configuration plugin=%s stored=%d target=%d: %v",
		pluginName(e.Plugin), e.StoredVersion, e.TargetVersion, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MigrationError reports a failed or missing migration step.
type MigrationError struct {
	Plugin string
	From   int
	To     int
	Err    error
}

func (e *MigrationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("settings: migration plugin=%s %d->%d: %v", pluginName(e.Plugin), e.From, e.To, e.Err)
}

func (e *MigrationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PathError records the path and the failing segment of an accessor call.
type PathError struct {
	Op      string
	Path    string
	Segment string
	Err     error
}

func (e *PathError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Segment == "" {
		return fmt.Sprintf("settings: %s %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("settings: %s %q at %q: %v", e.Op, e.Path, e.Segment, e.Err)
}

func (e *PathError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Evaluation phases recorded on EvaluationError.
const (
	PhaseCompile = "compile"
	PhaseRun     = "run"
)

// EvaluationError reports a rule expression that failed to compile or run.
// Phase is empty for errors returned by custom evaluators.
type EvaluationError struct {
	Engine string
	Phase  string
	Expr   string
	Plugin string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "settings: %s evaluator", e.Engine)
	if e.Phase != "" {
		fmt.Fprintf(&b, " %s", e.Phase)
	}
	if e.Expr == "" {
		b.WriteString(" expr=<empty>")
	} else {
		fmt.Fprintf(&b, " expr=%q", e.Expr)
	}
	fmt.Fprintf(&b, " plugin=%s: %v", pluginName(e.Plugin), e.Err)
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// wrapEvaluatorError prefixes engine failures that carry no expression.
func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) || strings.HasPrefix(err.Error(), "settings:") {
		return err
	}
	return fmt.Errorf("settings: %s evaluator: %w", engine, err)
}

func wrapCompileError(engine, expr, plugin string, err error) error {
	return wrapEvaluation(engine, PhaseCompile, expr, plugin, err)
}

func wrapRunError(engine, expr, plugin string, err error) error {
	return wrapEvaluation(engine, PhaseRun, expr, plugin, err)
}

// wrapEvaluation fills the blank fields of an existing EvaluationError in
// err, or wraps err in a new one.
func wrapEvaluation(engine, phase, expr, plugin string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Phase == "" {
			evalErr.Phase = phase
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Plugin == "" {
			evalErr.Plugin = plugin
		}
		return err
	}
	return &EvaluationError{Engine: engine, Phase: phase, Expr: expr, Plugin: plugin, Err: err}
}

func pluginName(name string) string {
	if name == "" {
		return "<unnamed>"
	}
	return name
}
