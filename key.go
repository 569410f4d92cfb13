package settings

import (
	"fmt"

	"github.com/goliatone/go-settings/internal/hydrate"
)

// Key is a typed handle on a key path. It gives plugin code a checked,
// parse-once accessor over the untyped path traversal.
type Key[T any] struct {
	path Path
}

// NewKey parses path into a typed key.
func NewKey[T any](path string) (Key[T], error) {
	p, err := ParsePath(path)
	if err != nil {
		return Key[T]{}, err
	}
	return Key[T]{path: p}, nil
}

// MustKey is NewKey for literals known to be valid.
func MustKey[T any](path string) Key[T] {
	key, err := NewKey[T](path)
	if err != nil {
		panic(err)
	}
	return key
}

// Path returns a copy of the parsed path.
func (k Key[T]) Path() Path {
	return append(Path(nil), k.path...)
}

func (k Key[T]) String() string {
	return k.path.String()
}

// Get reads the key from m. Values that are not already a T are decoded
// through their JSON form, so map subtrees hydrate into structs and float64
// numbers into integer types. ok is false when the path is absent.
func (k Key[T]) Get(m *Manager) (value T, ok bool, err error) {
	raw, ok := m.Lookup(k.path)
	if !ok {
		return value, false, nil
	}
	if typed, isT := raw.(T); isT {
		return typed, true, nil
	}
	decoded, err := hydrate.NewDecoder[T]().Decode(hydrate.Context{Plugin: m.plugin, Path: k.String()}, raw)
	if err != nil {
		return value, true, err
	}
	return decoded, true, nil
}

// GetOr returns the decoded value, or fallback when the path is absent or
// cannot be decoded into T.
func (k Key[T]) GetOr(m *Manager, fallback T) T {
	value, ok, err := k.Get(m)
	if !ok || err != nil {
		return fallback
	}
	return value
}

// Set stores value at the key. Values outside the serializable shape, such as
// structs, are stored in their JSON form.
func (k Key[T]) Set(m *Manager, value T) error {
	stored, err := storable(value)
	if err != nil {
		return &PathError{Op: "set", Path: k.String(), Err: err}
	}
	return m.Set(k.String(), stored)
}

// Unset deletes the key. See Manager.Unset.
func (k Key[T]) Unset(m *Manager) bool {
	return m.Unset(k.String())
}

// SetIfNotDefined stores thunk() when the key is absent.
func (k Key[T]) SetIfNotDefined(m *Manager, thunk func() T) error {
	if _, ok := m.Lookup(k.path); ok {
		return nil
	}
	var value T
	if thunk != nil {
		value = thunk()
	}
	return k.Set(m, value)
}

// Decode hydrates the subtree at path into T. An empty path decodes the whole
// backing object.
func Decode[T any](m *Manager, path string) (T, error) {
	var zero T
	raw := any(m.storage)
	if path != "" {
		value, ok := m.Get(path)
		if !ok {
			return zero, &PathError{Op: "decode", Path: path, Err: ErrPathNotFound}
		}
		raw = value
	}
	return hydrate.NewDecoder[T]().Decode(hydrate.Context{Plugin: m.plugin, Path: path}, raw)
}

func storable(value any) (any, error) {
	if IsSerializable(value) {
		return value, nil
	}
	normalized, err := hydrate.Normalize(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	return normalized, nil
}
