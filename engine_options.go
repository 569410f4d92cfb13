package settings

import (
	"sort"
	"strings"
)

// boundNames are the variables every engine binds next to the snapshot keys.
var boundNames = []string{"now", "args", "metadata", "plugin", "call"}

func isBoundName(name string) bool {
	for _, bound := range boundNames {
		if bound == name {
			return true
		}
	}
	return false
}

// engineOptions is the configuration shared by the expr, CEL and JS engines.
type engineOptions struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

func (o *engineOptions) setCache(cache ProgramCache) {
	o.cache = cache
}

func (o *engineOptions) setRegistry(registry *FunctionRegistry) {
	if registry == nil {
		return
	}
	o.registry = registry.Clone()
}

func applyEngineOptions[O ~func(*engineOptions)](opts []O) engineOptions {
	cfg := engineOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (o engineOptions) cached(key string) (any, bool) {
	if o.cache == nil {
		return nil, false
	}
	return o.cache.Get(key)
}

func (o engineOptions) remember(key string, program any) {
	if o.cache != nil {
		o.cache.Set(key, program)
	}
}

func (o engineOptions) functionNames() []string {
	if o.registry == nil {
		return nil
	}
	return o.registry.Names()
}

// ExprEvaluatorOption configures NewExprEvaluator.
type ExprEvaluatorOption func(*engineOptions)

// ExprWithProgramCache wires a ProgramCache into the expr evaluator.
func ExprWithProgramCache(cache ProgramCache) ExprEvaluatorOption {
	return func(o *engineOptions) { o.setCache(cache) }
}

// ExprWithFunctionRegistry wires a copy of registry into the expr evaluator.
// Registered functions are callable by name and through call("name", ...).
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprEvaluatorOption {
	return func(o *engineOptions) { o.setRegistry(registry) }
}

// CELEvaluatorOption configures NewCELEvaluator.
type CELEvaluatorOption func(*engineOptions)

// CELWithProgramCache wires a ProgramCache into the CEL evaluator.
func CELWithProgramCache(cache ProgramCache) CELEvaluatorOption {
	return func(o *engineOptions) { o.setCache(cache) }
}

// CELWithFunctionRegistry wires a copy of registry into the CEL evaluator.
// Registered functions are reachable as call("name", ...) with up to two
// arguments.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEvaluatorOption {
	return func(o *engineOptions) { o.setRegistry(registry) }
}

// JSEvaluatorOption configures NewJSEvaluator.
type JSEvaluatorOption func(*engineOptions)

// JSWithProgramCache wires a ProgramCache into the JS evaluator.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(o *engineOptions) { o.setCache(cache) }
}

// JSWithFunctionRegistry wires a copy of registry into the JS evaluator.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(o *engineOptions) { o.setRegistry(registry) }
}

// sortedKeys returns the top-level keys of snapshot in order.
func sortedKeys(snapshot map[string]any) []string {
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// programKey identifies a compiled program. Engines that declare snapshot
// keys as variables compile once per key set.
func programKey(engine, expression string, keys []string) string {
	if keys == nil {
		return engine + ":" + expression
	}
	return engine + ":" + expression + "|" + strings.Join(keys, ",")
}
