package settings

import (
	"strconv"
	"strings"
)

// PathSeparator delimits key path segments.
const PathSeparator = "."

// Path is a parsed key path. Segments address mapping keys or, for
// sequences, decimal indexes.
type Path []string

// ParsePath splits a dot-delimited key path into segments. Empty paths and
// empty segments are rejected.
func ParsePath(path string) (Path, error) {
	if path == "" {
		return nil, &PathError{Op: "parse", Path: path, Err: ErrInvalidPath}
	}
	segments := strings.Split(path, PathSeparator)
	for _, segment := range segments {
		if segment == "" {
			return nil, &PathError{Op: "parse", Path: path, Err: ErrInvalidPath}
		}
	}
	return Path(segments), nil
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(path string) Path {
	p, err := ParsePath(path)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	return strings.Join(p, PathSeparator)
}

// Append returns a new path with segments added after p.
func (p Path) Append(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

// Parent returns every segment but the last.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// Last returns the final segment, or "" for an empty path.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// HasPrefix reports whether p equals prefix or lies below it. Segments are
// compared whole, so "ab" is not below "a".
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, segment := range prefix {
		if p[i] != segment {
			return false
		}
	}
	return true
}

// LookupPath reads path from root. It reports false as soon as a segment is
// absent, including when path is malformed.
func LookupPath(root map[string]any, path string) (any, bool) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return lookup(root, p)
}

// SetPath assigns value at path inside root, creating absent intermediate
// mappings. Descending into a scalar fails with ErrStructuralMismatch.
func SetPath(root map[string]any, path string, value any) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	return assign(root, p, value)
}

// UnsetPath deletes the final segment of path. It reports false without
// mutating root when the parent of the final segment cannot be reached.
func UnsetPath(root map[string]any, path string) bool {
	p, err := ParsePath(path)
	if err != nil {
		return false
	}
	return remove(root, p)
}

func lookup(root map[string]any, p Path) (any, bool) {
	var node any = root
	for _, segment := range p {
		next, ok := child(node, segment)
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}

func child(node any, segment string) (any, bool) {
	switch typed := node.(type) {
	case map[string]any:
		value, ok := typed[segment]
		return value, ok
	case []any:
		idx, ok := parseIndex(segment)
		if !ok || idx >= len(typed) {
			return nil, false
		}
		return typed[idx], true
	default:
		return nil, false
	}
}

func assign(root map[string]any, p Path, value any) error {
	if err := checkSerializable(value); err != nil {
		return &PathError{Op: "set", Path: p.String(), Err: err}
	}
	if root == nil {
		return &PathError{Op: "set", Path: p.String(), Err: ErrStructuralMismatch}
	}

	var node any = root
	for i, segment := range p {
		last := i == len(p)-1
		switch typed := node.(type) {
		case map[string]any:
			if typed == nil {
				return &PathError{Op: "set", Path: p.String(), Segment: p[i-1], Err: ErrStructuralMismatch}
			}
			if last {
				typed[segment] = value
				return nil
			}
			next, ok := typed[segment]
			if !ok {
				created := map[string]any{}
				typed[segment] = created
				next = created
			}
			node = next
		case []any:
			idx, ok := parseIndex(segment)
			if !ok {
				return &PathError{Op: "set", Path: p.String(), Segment: segment, Err: ErrStructuralMismatch}
			}
			if idx >= len(typed) {
				return &PathError{Op: "set", Path: p.String(), Segment: segment, Err: ErrIndexOutOfRange}
			}
			if last {
				typed[idx] = value
				return nil
			}
			node = typed[idx]
		default:
			return &PathError{Op: "set", Path: p.String(), Segment: p[i-1], Err: ErrStructuralMismatch}
		}
	}
	return nil
}

func remove(root map[string]any, p Path) bool {
	parent, ok := lookup(root, p.Parent())
	if !ok {
		return false
	}
	node, ok := parent.(map[string]any)
	if !ok {
		return false
	}
	delete(node, p.Last())
	return true
}

func parseIndex(segment string) (int, bool) {
	if segment == "" || segment[0] == '+' {
		return 0, false
	}
	idx, err := strconv.ParseUint(segment, 10, 31)
	if err != nil {
		return 0, false
	}
	return int(idx), true
}
