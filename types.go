package settings

import (
	"time"

	"github.com/goliatone/go-settings/pkg/activity"
	"go.uber.org/zap"
)

// VersionKey is the reserved top-level key holding the schema version of a
// backing object.
const VersionKey = "version"

// Initializer produces the complete default backing object, including its
// version field, for storage that was never initialized.
type Initializer func() map[string]any

// Migration transforms an object shaped for version n into the shape for
// version n+1. The returned map must not carry the version field; the
// manager injects it.
type Migration func(old map[string]any) (map[string]any, error)

// Migrations maps a version n to the step that upgrades it to n+1.
type Migrations map[int]Migration

// Config carries the construction inputs of a Manager.
type Config struct {
	// Storage is the caller-owned backing object. It is mutated in place and
	// never replaced, so whoever holds the same map observes every change.
	Storage map[string]any
	// Version is the schema version the storage converges to. Must be >= 1.
	Version    int
	Initialize Initializer
	Migrations Migrations
}

// Manager wraps a persisted, arbitrarily nested backing object and serves
// dotted-path accessors over it once the object has been normalized to the
// configured version.
//
// A Manager performs no locking. Callers sharing one across goroutines must
// serialise access themselves.
type Manager struct {
	storage map[string]any
	version int
	plugin  string

	cfg managerConfig
}

// Option configures optional Manager behaviour.
type Option func(*managerConfig)

type managerConfig struct {
	plugin          string
	logger          *zap.Logger
	evaluator       Evaluator
	programCache    ProgramCache
	functions       *FunctionRegistry
	evaluatorLogger EvaluatorLogger
	schemaGenerator SchemaGenerator
	activityHooks   activity.Hooks
	emitter         *activity.Emitter
	pruneMigrated   bool
	optionErrs      []error
}

func applyOptions(opts []Option) managerConfig {
	cfg := managerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	for _, err := range cfg.optionErrs {
		cfg.logger.Warn("settings option ignored", zap.String("plugin", cfg.plugin), zap.Error(err))
	}
	cfg.emitter = activity.NewEmitter(cfg.activityHooks, activity.Config{
		Enabled: true,
		Plugin:  cfg.plugin,
	})
	return cfg
}

// WithPlugin names the plugin that owns the storage. The name is attached to
// log entries, activity events and evaluator contexts.
func WithPlugin(name string) Option {
	return func(cfg *managerConfig) {
		cfg.plugin = name
	}
}

// WithLogger sets the structured logger. A nil logger keeps the no-op default.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *managerConfig) {
		cfg.logger = logger
	}
}

// WithPruneMigratedKeys deletes top-level keys that the migrated shape no
// longer carries. By default migration results are merged over the backing
// object and stale keys survive.
func WithPruneMigratedKeys() Option {
	return func(cfg *managerConfig) {
		cfg.pruneMigrated = true
	}
}

// WithEvaluator configures the evaluator used by Manager.Evaluate.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *managerConfig) {
		cfg.evaluator = e
	}
}

// WithSchemaGenerator configures a custom schema generator implementation.
func WithSchemaGenerator(generator SchemaGenerator) Option {
	return func(cfg *managerConfig) {
		cfg.schemaGenerator = generator
	}
}

// RuleContext carries inputs needed when evaluating an expression.
type RuleContext struct {
	Snapshot any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
	Plugin   string
}

func (ctx RuleContext) withDefaults() RuleContext {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	if ctx.Now == nil {
		return time.Now()
	}
	return *ctx.Now
}

func (ctx RuleContext) pluginLabel() string {
	if ctx.Plugin != "" {
		return ctx.Plugin
	}
	return "unknown"
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}
