package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/internal/config"
	"github.com/goliatone/go-settings/pkg/state"
)

// app carries the dependencies shared by every subcommand. Fields already set
// before Execute (tests) are kept.
type app struct {
	configFile string
	verbose    bool
	noColor    bool

	cfg       *config.Config
	logger    *zap.Logger
	store     state.Store
	evaluator settings.Evaluator
	closers   []io.Closer
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.cfg == nil {
		cfg, err := config.Load(a.configFile)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.logger == nil {
		logger, err := buildLogger(a.cfg.Log, a.verbose)
		if err != nil {
			return err
		}
		a.logger = logger
	}
	if a.store == nil {
		store, err := a.openStore()
		if err != nil {
			return err
		}
		a.store = store
	}
	if a.evaluator == nil {
		evaluator, err := buildEvaluator(a.cfg.Evaluator.Engine)
		if err != nil {
			return err
		}
		a.evaluator = evaluator
	}
	a.logger.Debug("settingsctl ready", zap.String("command", cmd.Name()), zap.String("backend", a.cfg.Store.Backend))
	return nil
}

func (a *app) teardown() {
	for _, closer := range a.closers {
		_ = closer.Close()
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) openStore() (state.Store, error) {
	switch a.cfg.Store.Backend {
	case "memory":
		return state.NewMemoryStore(), nil
	case "file":
		return state.NewFileStore(a.cfg.Store.Dir, a.logger)
	case "sqlite":
		store, err := state.NewSQLiteStore(a.cfg.Store.Path, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
}

func (a *app) loader() state.Loader {
	return state.Loader{Store: a.store, Logger: a.logger}
}

// passthrough loads the stored object for plugin, its metadata and a config
// that opens it at its own version.
func (a *app) passthrough(ctx context.Context, plugin string) (map[string]any, state.Meta, settings.Config, error) {
	storage, meta, _, err := a.store.Load(ctx, state.Ref{Plugin: plugin})
	if err != nil {
		return nil, state.Meta{}, settings.Config{}, err
	}
	if storage == nil {
		storage = map[string]any{}
	}
	cfg, err := passthroughConfig(storage)
	return storage, meta, cfg, err
}

// passthroughConfig keeps the stored version. Objects without one start empty
// at version 1.
func passthroughConfig(storage map[string]any) (settings.Config, error) {
	version, present, err := settings.StoredVersion(storage)
	if err != nil {
		return settings.Config{}, err
	}
	if !present {
		version = 1
	}
	return settings.Config{
		Version:    version,
		Initialize: func() map[string]any { return map[string]any{} },
	}, nil
}

func (a *app) managerOptions() []settings.Option {
	return []settings.Option{
		settings.WithEvaluator(a.evaluator),
		settings.WithEvaluatorLogger(settings.ZapEvaluatorLogger(a.logger)),
	}
}

func buildLogger(cfg config.LogConfig, verbose bool) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stderr"}
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func buildEvaluator(engine string) (settings.Evaluator, error) {
	cache := settings.NewMapProgramCache()
	switch engine {
	case "", "expr":
		return settings.NewExprEvaluator(settings.ExprWithProgramCache(cache)), nil
	case "cel":
		return settings.NewCELEvaluator(settings.CELWithProgramCache(cache)), nil
	case "js":
		evaluator := settings.NewJSEvaluator(settings.JSWithProgramCache(cache))
		if evaluator == nil {
			return nil, fmt.Errorf("js evaluator requires the js_eval build tag")
		}
		return evaluator, nil
	default:
		return nil, fmt.Errorf("unknown evaluator engine %q", engine)
	}
}
