package migration

import (
	"fmt"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/layering"
)

type compiledOp struct {
	Op
	expr settings.CompiledRule
	when settings.CompiledRule
}

// Migrations compiles the plan into a migration table. Expressions are
// compiled with evaluator, or the expr engine when evaluator is nil, and run
// against the object being migrated.
func (p *Plan) Migrations(evaluator settings.Evaluator) (settings.Migrations, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if evaluator == nil {
		evaluator = settings.NewExprEvaluator()
	}

	table := settings.Migrations{}
	for _, from := range p.stepVersions() {
		ops := make([]compiledOp, 0, len(p.Steps[from].Ops))
		for i, op := range p.Steps[from].Ops {
			compiled, err := compileOp(evaluator, op)
			if err != nil {
				return nil, &OpError{Step: from, Index: i, Op: op.Op, Err: err}
			}
			ops = append(ops, compiled)
		}
		table[from] = p.stepMigration(from, ops)
	}
	return table, nil
}

// Config builds a manager configuration from the plan: its version, its
// defaults as the initializer and its compiled steps.
func (p *Plan) Config(evaluator settings.Evaluator) (settings.Config, error) {
	migrations, err := p.Migrations(evaluator)
	if err != nil {
		return settings.Config{}, err
	}
	defaults := p.Defaults
	return settings.Config{
		Version: p.Version,
		Initialize: func() map[string]any {
			if defaults == nil {
				return map[string]any{}
			}
			return layering.CloneMap(defaults)
		},
		Migrations: migrations,
	}, nil
}

func compileOp(evaluator settings.Evaluator, op Op) (compiledOp, error) {
	out := compiledOp{Op: op}
	if op.Expr != "" {
		rule, err := evaluator.Compile(op.Expr)
		if err != nil {
			return out, fmt.Errorf("expr: %w", err)
		}
		out.expr = rule
	}
	if op.When != "" {
		rule, err := evaluator.Compile(op.When)
		if err != nil {
			return out, fmt.Errorf("when: %w", err)
		}
		out.when = rule
	}
	return out, nil
}

func (p *Plan) stepMigration(from int, ops []compiledOp) settings.Migration {
	plugin := p.Plugin
	return func(old map[string]any) (map[string]any, error) {
		working := layering.CloneMap(old)
		if working == nil {
			working = map[string]any{}
		}
		for i, op := range ops {
			ctx := settings.RuleContext{
				Snapshot: working,
				Plugin:   plugin,
				Metadata: map[string]any{"from": from, "to": from + 1},
			}
			if err := op.apply(ctx, working); err != nil {
				return nil, &OpError{Step: from, Index: i, Op: op.Op.Op, Err: err}
			}
		}
		delete(working, settings.VersionKey)
		return working, nil
	}
}

func (op compiledOp) apply(ctx settings.RuleContext, working map[string]any) error {
	if op.when != nil {
		result, err := op.when.Evaluate(ctx)
		if err != nil {
			return err
		}
		enabled, ok := result.(bool)
		if !ok {
			return fmt.Errorf("when must evaluate to bool, got %T", result)
		}
		if !enabled {
			return nil
		}
	}

	switch op.Op.Op {
	case KindSet:
		value, err := op.value(ctx)
		if err != nil {
			return err
		}
		return settings.SetPath(working, op.Path, value)
	case KindDefault:
		if _, ok := settings.LookupPath(working, op.Path); ok {
			return nil
		}
		value, err := op.value(ctx)
		if err != nil {
			return err
		}
		return settings.SetPath(working, op.Path, value)
	case KindRename:
		value, ok := settings.LookupPath(working, op.Path)
		if !ok {
			return nil
		}
		if err := settings.SetPath(working, op.To, value); err != nil {
			return err
		}
		settings.UnsetPath(working, op.Path)
		return nil
	case KindDelete:
		settings.UnsetPath(working, op.Path)
		return nil
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidPlan, op.Op.Op)
	}
}

func (op compiledOp) value(ctx settings.RuleContext) (any, error) {
	if op.expr != nil {
		return op.expr.Evaluate(ctx)
	}
	return layering.Clone(op.Value), nil
}
