// Package config loads settingsctl configuration from a YAML file and
// SETTINGS_* environment variables.
package config

// Config holds all settingsctl configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log" validate:"required"`
	Store     StoreConfig     `mapstructure:"store" validate:"required"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator" validate:"required"`
}

// LogConfig controls the zap logger built by the CLI.
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=memory file sqlite"`
	// Dir is the FileStore root.
	Dir string `mapstructure:"dir" validate:"required_if=Backend file"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path" validate:"required_if=Backend sqlite"`
}

// EvaluatorConfig selects the expression engine used by eval and migrate.
type EvaluatorConfig struct {
	Engine string `mapstructure:"engine" validate:"required,oneof=expr cel js"`
}
