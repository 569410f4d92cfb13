package settings

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-settings/layering"
)

var ErrNoEvaluator = errors.New("settings: evaluator not configured")

// Evaluate executes expr against a copy of the backing object. Top-level keys
// are bound as variables, so `silentCall.enabled && !silentCall.default`
// reads the stored flags.
func (m *Manager) Evaluate(expr string) (any, error) {
	return m.EvaluateWith(RuleContext{}, expr)
}

// EvaluateWith executes expr using ctx, falling back to a copy of the backing
// object when ctx.Snapshot is nil.
func (m *Manager) EvaluateWith(ctx RuleContext, expr string) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}
	evaluator, err := m.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	if ctx.Snapshot == nil {
		ctx.Snapshot = layering.CloneMap(m.storage)
	}
	if ctx.Plugin == "" {
		ctx.Plugin = m.plugin
	}
	ctx = ctx.withDefaults()

	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	duration := time.Since(start)
	evalErr = wrapEvaluation(evaluatorEngineName(evaluator), "", expr, ctx.pluginLabel(), evalErr)
	m.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   evaluatorEngineName(evaluator),
		Expr:     expr,
		Plugin:   ctx.pluginLabel(),
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

func (m *Manager) resolveEvaluator() (Evaluator, error) {
	if m.cfg.evaluator != nil {
		return m.cfg.evaluator, nil
	}
	var exprOpts []ExprEvaluatorOption
	if cache := m.cfg.programCache; cache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(cache))
	}
	if registry := m.cfg.functions; registry != nil {
		exprOpts = append(exprOpts, ExprWithFunctionRegistry(registry))
	}
	defaultEvaluator := NewExprEvaluator(exprOpts...)
	if defaultEvaluator == nil {
		return nil, ErrNoEvaluator
	}
	m.cfg.evaluator = defaultEvaluator
	return defaultEvaluator, nil
}

func (m *Manager) evaluatorLogger() EvaluatorLogger {
	if m.cfg.evaluatorLogger != nil {
		return m.cfg.evaluatorLogger
	}
	return noopEvaluatorLogger{}
}

func evaluatorEngineName(e Evaluator) string {
	switch e.(type) {
	case nil:
		return "unknown"
	case *exprEvaluator:
		return "expr"
	case *celEvaluator:
		return "cel"
	default:
		if name, ok := e.(interface{ EngineName() string }); ok {
			return name.EngineName()
		}
		return "custom"
	}
}
