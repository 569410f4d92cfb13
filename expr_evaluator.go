package settings

import (
	"fmt"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprtypes "github.com/expr-lang/expr/types"
	exprvm "github.com/expr-lang/expr/vm"
)

// exprEvaluator executes rule expressions using github.com/expr-lang/expr.
type exprEvaluator struct {
	engineOptions
}

// NewExprEvaluator constructs an Evaluator backed by expr-lang/expr.
func NewExprEvaluator(opts ...ExprEvaluatorOption) Evaluator {
	return &exprEvaluator{engineOptions: applyEngineOptions(opts)}
}

// Evaluate compiles and runs expression against ctx.Snapshot.
func (e *exprEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("expr", fmt.Errorf("expression must not be empty"))
	}
	ctx = ctx.withDefaults()
	snapshot := snapshotAsMap(ctx.Snapshot)
	program, err := e.loadOrCompile(expression, snapshot)
	if err != nil {
		return nil, wrapCompileError("expr", expression, ctx.pluginLabel(), err)
	}
	result, err := exprlang.Run(program, e.environment(ctx, snapshot))
	if err != nil {
		return nil, wrapRunError("expr", expression, ctx.pluginLabel(), err)
	}
	return result, nil
}

// Compile checks the syntax of expression up front. Programs are bound to the
// snapshot keys, so the rule compiles per key set on evaluation.
func (e *exprEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("expr", fmt.Errorf("expression must not be empty"))
	}
	if _, err := e.loadOrCompile(expression, map[string]any{}); err != nil {
		return nil, wrapCompileError("expr", expression, "", err)
	}
	return &exprCompiledRule{evaluator: e, expression: expression}, nil
}

// loadOrCompile declares every bound name and snapshot key as a variable, so
// settings named like builtins (count, len, now) read as values.
func (e *exprEvaluator) loadOrCompile(expression string, snapshot map[string]any) (*exprvm.Program, error) {
	keys := sortedKeys(snapshot)
	cacheKey := programKey("expr", expression, keys)
	if cached, ok := e.cached(cacheKey); ok {
		if program, ok := cached.(*exprvm.Program); ok {
			return program, nil
		}
	}

	env := exprtypes.Map{
		"now":           exprtypes.TypeOf(time.Time{}),
		"args":          exprtypes.Any,
		"metadata":      exprtypes.Any,
		"plugin":        exprtypes.String,
		exprtypes.Extra: exprtypes.Any,
	}
	if e.registry != nil {
		env["call"] = exprtypes.Any
	}
	for _, key := range keys {
		if !isBoundName(key) {
			env[key] = exprtypes.Any
		}
	}
	options := []exprlang.Option{exprlang.Env(env)}
	for _, name := range e.functionNames() {
		if _, shadowed := snapshot[name]; shadowed {
			continue
		}
		options = append(options, exprlang.Function(name, e.registryFunction(name)))
	}

	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, err
	}
	e.remember(cacheKey, program)
	return program, nil
}

type exprCompiledRule struct {
	evaluator  *exprEvaluator
	expression string
}

func (r *exprCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	if r.evaluator == nil {
		return nil, wrapEvaluatorError("expr", fmt.Errorf("compiled rule missing evaluator"))
	}
	return r.evaluator.Evaluate(ctx, r.expression)
}

func (e *exprEvaluator) environment(ctx RuleContext, snapshot map[string]any) map[string]any {
	env := make(map[string]any, len(snapshot)+len(boundNames))
	for key, value := range snapshot {
		env[key] = value
	}
	env["now"] = ctx.timestamp()
	env["args"] = ctx.Args
	env["metadata"] = ctx.Metadata
	env["plugin"] = ctx.Plugin
	if e.registry != nil {
		env["call"] = func(name string, arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		}
	}
	return env
}

func (e *exprEvaluator) registryFunction(name string) func(...any) (any, error) {
	return func(arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}
}
