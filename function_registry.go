package settings

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"unicode"
)

// ErrInvalidFunction indicates a registration the evaluators cannot expose.
var ErrInvalidFunction = errors.New("settings: invalid function")

// Function is a helper callable from rule expressions.
type Function func(args ...any) (any, error)

// FunctionRegistry holds the helpers exposed to rule expressions. Names are
// case-sensitive identifiers, the way every engine resolves them.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Register adds fn under name. The name must be an identifier that is not
// already taken and is not one of the names bound for every evaluation (now,
// args, metadata, plugin, call).
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if err := checkFunctionName(name); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: %q is nil", ErrInvalidFunction, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("%w: %q already registered", ErrInvalidFunction, name)
	}
	r.functions[name] = fn
	return nil
}

// MustRegister is Register for package-level setup. It panics on error.
func (r *FunctionRegistry) MustRegister(name string, fn Function) *FunctionRegistry {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
	return r
}

// Has reports whether name is registered.
func (r *FunctionRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[name]
	return ok
}

// Clone returns a registry holding the same functions.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call runs the function registered under name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("settings: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[name]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("settings: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkFunctionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidFunction)
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return fmt.Errorf("%w: %q is not an identifier", ErrInvalidFunction, name)
	}
	if isBoundName(name) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidFunction, name)
	}
	return nil
}

// WithFunctionRegistry configures the default evaluator to use a copy of registry.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *managerConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn under name for the default evaluator.
// Invalid registrations are logged and skipped.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *managerConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		if err := cfg.functions.Register(name, fn); err != nil {
			cfg.optionErrs = append(cfg.optionErrs, err)
		}
	}
}
