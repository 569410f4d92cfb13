package settings

import (
	"time"

	"go.uber.org/zap"
)

// EvaluatorLogEvent describes an evaluation attempt for logging.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Plugin   string
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// ZapEvaluatorLogger writes evaluation events to logger at debug level, or
// warn level when the evaluation failed.
func ZapEvaluatorLogger(logger *zap.Logger) EvaluatorLogger {
	if logger == nil {
		return noopEvaluatorLogger{}
	}
	return EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
		fields := []zap.Field{
			zap.String("engine", event.Engine),
			zap.String("expr", event.Expr),
			zap.String("plugin", event.Plugin),
			zap.Duration("duration", event.Duration),
		}
		if event.Err != nil {
			logger.Warn("settings evaluation failed", append(fields, zap.Error(event.Err))...)
			return
		}
		logger.Debug("settings evaluation", fields...)
	})
}

// WithEvaluatorLogger attaches an evaluator logger to the manager.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *managerConfig) {
		if logger == nil {
			cfg.evaluatorLogger = noopEvaluatorLogger{}
			return
		}
		cfg.evaluatorLogger = logger
	}
}
