package settings

import (
	"context"
	"fmt"

	"github.com/goliatone/go-settings/layering"
	"github.com/goliatone/go-settings/pkg/activity"
	"go.uber.org/zap"
)

// New wraps cfg.Storage and normalizes it to cfg.Version.
//
// Storage without a version field is populated from cfg.Initialize. Storage at
// an older version is upgraded one step at a time through cfg.Migrations.
// Storage newer than cfg.Version fails with a *ConfigurationError wrapping
// ErrUnsupportedDowngrade. On any error the storage is left untouched and no
// manager is returned.
func New(cfg Config, opts ...Option) (*Manager, error) {
	options := applyOptions(opts)
	m := &Manager{
		storage: cfg.Storage,
		version: cfg.Version,
		plugin:  options.plugin,
		cfg:     options,
	}
	if m.storage == nil {
		m.storage = map[string]any{}
	}

	if cfg.Version < 1 {
		return nil, m.configurationError(0, fmt.Errorf("%w: target %d must be >= 1", ErrInvalidVersion, cfg.Version))
	}
	if cfg.Initialize == nil {
		return nil, m.configurationError(0, ErrInitializerRequired)
	}

	stored, present, err := versionOf(m.storage)
	if err != nil {
		return nil, m.configurationError(0, err)
	}

	if !present {
		if err := m.initialize(cfg.Initialize); err != nil {
			return nil, err
		}
		return m, nil
	}

	switch {
	case cfg.Version < stored:
		return nil, m.configurationError(stored, ErrUnsupportedDowngrade)
	case cfg.Version > stored:
		if err := m.migrate(stored, cfg.Migrations); err != nil {
			return nil, err
		}
	default:
		m.logger().Debug("settings current", zap.Int("version", stored))
	}
	return m, nil
}

func (m *Manager) initialize(factory Initializer) error {
	defaults := factory()
	if defaults == nil {
		defaults = map[string]any{}
	}
	if raw, ok := defaults[VersionKey]; ok {
		version, err := toVersion(raw)
		if err != nil {
			return m.configurationError(0, fmt.Errorf("initializer: %w", err))
		}
		if version != m.version {
			return m.configurationError(version, fmt.Errorf("%w: initializer produced version %d", ErrInvalidVersion, version))
		}
	}
	if err := checkSerializable(defaults); err != nil {
		return m.configurationError(0, fmt.Errorf("initializer: %w", err))
	}

	for key, value := range defaults {
		m.storage[key] = value
	}
	m.storage[VersionKey] = m.version

	m.logger().Info("settings initialized", zap.Int("version", m.version), zap.Int("keys", len(defaults)))
	m.emit(activity.VerbSettingsInitialized, activity.SettingsEventInput{
		ToVersion: m.version,
	})
	return nil
}

func (m *Manager) migrate(from int, migrations Migrations) error {
	for current := from; current < m.version; current++ {
		if migrations[current] == nil {
			return &MigrationError{Plugin: m.plugin, From: current, To: current + 1, Err: ErrMissingMigration}
		}
	}

	working := layering.CloneMap(m.storage)
	for current := from; current < m.version; current++ {
		next, err := migrations[current](working)
		if err != nil {
			return &MigrationError{Plugin: m.plugin, From: current, To: current + 1, Err: err}
		}
		if next == nil {
			next = map[string]any{}
		}
		next = layering.CloneMap(next)
		next[VersionKey] = current + 1
		working = next
		m.logger().Debug("settings migration step", zap.Int("from", current), zap.Int("to", current+1))
	}
	if err := checkSerializable(working); err != nil {
		return &MigrationError{Plugin: m.plugin, From: from, To: m.version, Err: err}
	}

	if m.cfg.pruneMigrated {
		for key := range m.storage {
			if _, ok := working[key]; !ok {
				delete(m.storage, key)
			}
		}
	}
	for key, value := range working {
		m.storage[key] = value
	}

	m.logger().Info("settings migrated", zap.Int("from", from), zap.Int("to", m.version))
	m.emit(activity.VerbSettingsMigrated, activity.SettingsEventInput{
		FromVersion: from,
		ToVersion:   m.version,
	})
	return nil
}

// Version returns the schema version the storage was normalized to.
func (m *Manager) Version() int {
	if m == nil {
		return 0
	}
	return m.version
}

// Plugin returns the owning plugin name configured through WithPlugin.
func (m *Manager) Plugin() string {
	if m == nil {
		return ""
	}
	return m.plugin
}

// Storage returns the live backing object. Mutations through the returned map
// are visible to the manager and vice versa.
func (m *Manager) Storage() map[string]any {
	if m == nil {
		return nil
	}
	return m.storage
}

// Snapshot returns a deep copy of the backing object.
func (m *Manager) Snapshot() map[string]any {
	if m == nil {
		return nil
	}
	return layering.CloneMap(m.storage)
}

// Backfill copies every leaf of defaults that the storage does not hold yet and
// returns the filled paths. Present values are never overwritten.
func (m *Manager) Backfill(defaults map[string]any) ([]string, error) {
	if err := checkSerializable(defaults); err != nil {
		return nil, &PathError{Op: "backfill", Err: err}
	}
	filled := layering.Fill(m.storage, defaults)
	for _, path := range filled {
		m.logger().Debug("settings backfilled", zap.String("path", path))
		value, _ := LookupPath(m.storage, path)
		m.emit(activity.VerbSettingsUpdated, activity.SettingsEventInput{
			Path:     path,
			NewValue: value,
		})
	}
	return filled, nil
}

func (m *Manager) configurationError(stored int, err error) error {
	return &ConfigurationError{
		Plugin:        m.plugin,
		StoredVersion: stored,
		TargetVersion: m.version,
		Err:           err,
	}
}

func (m *Manager) logger() *zap.Logger {
	logger := m.cfg.logger
	if m.plugin != "" {
		logger = logger.With(zap.String("plugin", m.plugin))
	}
	return logger
}

// emit reports verb to the activity hooks. The emitter stamps the plugin.
func (m *Manager) emit(verb string, input activity.SettingsEventInput) {
	if !m.cfg.emitter.Enabled() {
		return
	}
	if err := m.cfg.emitter.EmitSettings(context.Background(), verb, input); err != nil {
		m.logger().Warn("settings activity hook failed",
			zap.String("verb", verb),
			zap.String("path", input.Path),
			zap.Error(err),
		)
	}
}
