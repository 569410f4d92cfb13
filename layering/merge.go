package layering

import (
	"reflect"
	"sort"
	"strings"
)

// Clone returns a deep copy of value. Maps, slices, arrays and pointers are
// copied recursively; scalars are returned as-is.
func Clone[T any](value T) T {
	var zero T
	cloned := cloneValue(reflect.ValueOf(value))
	if !cloned.IsValid() {
		return zero
	}
	out, ok := cloned.Interface().(T)
	if !ok {
		return zero
	}
	return out
}

// CloneMap deep copies a nested map. A nil input yields nil.
func CloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return Clone(src)
}

// Fill copies every leaf of defaults that dst does not already hold, in place.
// Nested mappings present on both sides are descended; any other value already
// present in dst wins, whatever its type. It returns the filled paths sorted
// alphabetically.
func Fill(dst, defaults map[string]any) []string {
	if dst == nil || len(defaults) == 0 {
		return nil
	}
	var filled []string
	fill(dst, defaults, "", &filled)
	sort.Strings(filled)
	return filled
}

func fill(dst, defaults map[string]any, prefix string, filled *[]string) {
	for key, value := range defaults {
		path := joinPath(prefix, key)
		existing, ok := dst[key]
		if !ok {
			dst[key] = cloneAny(value)
			*filled = append(*filled, path)
			continue
		}
		strong, strongIsMap := existing.(map[string]any)
		weak, weakIsMap := value.(map[string]any)
		if strongIsMap && weakIsMap && strong != nil {
			fill(strong, weak, path, filled)
		}
	}
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}

func cloneAny(value any) any {
	if value == nil {
		return nil
	}
	return cloneValue(reflect.ValueOf(value)).Interface()
}

func cloneValue(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.New(v.Type().Elem())
		clone.Elem().Set(cloneValue(v.Elem()))
		return clone
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		elem := cloneValue(v.Elem())
		out := reflect.New(v.Type()).Elem()
		out.Set(elem)
		return out
	case reflect.Struct:
		clone := reflect.New(v.Type()).Elem()
		clone.Set(v)
		for i := 0; i < v.NumField(); i++ {
			field := clone.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(cloneValue(v.Field(i)))
		}
		return clone
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), assignable(cloneValue(iter.Value()), v.Type().Elem()))
		}
		return clone
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(assignable(cloneValue(v.Index(i)), v.Type().Elem()))
		}
		return clone
	case reflect.Array:
		clone := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(assignable(cloneValue(v.Index(i)), v.Type().Elem()))
		}
		return clone
	default:
		return v
	}
}

// assignable adapts a cloned element so it can be stored in a container whose
// element type is typ. A nil interface element becomes the zero value of typ.
func assignable(v reflect.Value, typ reflect.Type) reflect.Value {
	if !v.IsValid() {
		return reflect.Zero(typ)
	}
	if v.Kind() == reflect.Interface && v.IsNil() {
		return reflect.Zero(typ)
	}
	return v
}
