package settings

import (
	"github.com/goliatone/go-settings/pkg/activity"
	"go.uber.org/zap"
)

// Get returns the value at path. It reports false the moment a segment is
// absent and never fails; malformed paths read as absent. Mappings and
// sequences are returned by reference.
func (m *Manager) Get(path string) (any, bool) {
	return LookupPath(m.storage, path)
}

// Lookup is Get over a parsed path.
func (m *Manager) Lookup(path Path) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	return lookup(m.storage, path)
}

// Has reports whether path resolves to a value, including an explicit nil.
func (m *Manager) Has(path string) bool {
	_, ok := m.Get(path)
	return ok
}

// Set assigns value at path, creating absent intermediate mappings in place.
// An intermediate segment holding a scalar fails with ErrStructuralMismatch
// rather than being overwritten.
func (m *Manager) Set(path string, value any) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	old, existed := lookup(m.storage, p)
	if err := assign(m.storage, p, value); err != nil {
		return err
	}

	m.logger().Debug("settings set", zap.String("path", path))
	input := activity.SettingsEventInput{
		Path:     path,
		NewValue: value,
	}
	if existed {
		input.OldValue = old
	}
	m.emit(activity.VerbSettingsUpdated, input)
	return nil
}

// MustSet is Set for chained calls on paths known to be valid. It panics on
// error.
func (m *Manager) MustSet(path string, value any) *Manager {
	if err := m.Set(path, value); err != nil {
		panic(err)
	}
	return m
}

// Unset deletes the final segment of path. It reports false without mutating
// anything when an intermediate segment is missing or is not a mapping.
func (m *Manager) Unset(path string) bool {
	p, err := ParsePath(path)
	if err != nil {
		return false
	}
	old, existed := lookup(m.storage, p)
	if !remove(m.storage, p) {
		return false
	}

	m.logger().Debug("settings unset", zap.String("path", path), zap.Bool("existed", existed))
	input := activity.SettingsEventInput{
		Path: path,
	}
	if existed {
		input.OldValue = old
	}
	m.emit(activity.VerbSettingsDeleted, input)
	return true
}

// GetFirstDefined evaluates Get over paths in order and returns the first
// value found.
func (m *Manager) GetFirstDefined(paths ...string) (any, bool) {
	for _, path := range paths {
		if value, ok := m.Get(path); ok {
			return value, true
		}
	}
	return nil, false
}

// SetIfNotDefined sets path to thunk() when path is absent. thunk runs at most
// once and only when needed.
func (m *Manager) SetIfNotDefined(path string, thunk func() any) error {
	if _, err := ParsePath(path); err != nil {
		return err
	}
	if m.Has(path) {
		return nil
	}
	var value any
	if thunk != nil {
		value = thunk()
	}
	return m.Set(path, value)
}
