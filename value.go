package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// IsSerializable reports whether value only contains strings, numbers,
// booleans, nil, map[string]any and []any. Typed containers such as
// map[string]string are rejected so every stored mapping can be walked and
// written by path alike.
func IsSerializable(value any) bool {
	return checkSerializable(value) == nil
}

func checkSerializable(value any) error {
	switch typed := value.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case map[string]any:
		for key, item := range typed {
			if err := checkSerializable(item); err != nil {
				return fmt.Errorf("%w: key %q", err, key)
			}
		}
		return nil
	case []any:
		for i, item := range typed {
			if err := checkSerializable(item); err != nil {
				return fmt.Errorf("%w: index %d", err, i)
			}
		}
		return nil
	}

	// Named scalar types keep their kind.
	switch reflect.ValueOf(value).Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Map, reflect.Slice, reflect.Array:
		return fmt.Errorf("%w: %T (use map[string]any or []any)", ErrNotSerializable, value)
	default:
		return fmt.Errorf("%w: %T", ErrNotSerializable, value)
	}
}

// versionOf reads the reserved version field. present is false only when the
// field is absent; a present but non-integral value is an error.
func versionOf(storage map[string]any) (version int, present bool, err error) {
	raw, ok := storage[VersionKey]
	if !ok {
		return 0, false, nil
	}
	version, err = toVersion(raw)
	return version, true, err
}

// maxFloatVersion is 2^63, the first float above every int64.
const maxFloatVersion = float64(1 << 63)

func toVersion(raw any) (int, error) {
	switch typed := raw.(type) {
	case int:
		return typed, nil
	case int8:
		return int(typed), nil
	case int16:
		return int(typed), nil
	case int32:
		return int(typed), nil
	case int64:
		if typed >= math.MinInt && typed <= math.MaxInt {
			return int(typed), nil
		}
	case uint:
		if uint64(typed) <= math.MaxInt {
			return int(typed), nil
		}
	case uint8:
		return int(typed), nil
	case uint16:
		return int(typed), nil
	case uint32:
		if uint64(typed) <= math.MaxInt {
			return int(typed), nil
		}
	case uint64:
		if typed <= math.MaxInt {
			return int(typed), nil
		}
	case float64:
		return floatVersion(raw, typed)
	case float32:
		return floatVersion(raw, float64(typed))
	case json.Number:
		if n, err := typed.Int64(); err == nil && n >= math.MinInt && n <= math.MaxInt {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %v (%T)", ErrInvalidVersion, raw, raw)
}

func floatVersion(raw any, f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %v (%T)", ErrInvalidVersion, raw, raw)
	}
	if f >= maxFloatVersion || f < -maxFloatVersion || f > math.MaxInt || f < math.MinInt {
		return 0, fmt.Errorf("%w: %v (%T) out of range", ErrInvalidVersion, raw, raw)
	}
	return int(f), nil
}

// StoredVersion reads the version field of a raw backing object without
// constructing a manager. ok is false when the field is absent.
func StoredVersion(storage map[string]any) (version int, ok bool, err error) {
	return versionOf(storage)
}
