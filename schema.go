package settings

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaFormat identifies the representation a schema document encodes.
type SchemaFormat string

// SchemaFormatDescriptors represents the flattened field descriptors.
const SchemaFormatDescriptors SchemaFormat = "descriptors"

// SchemaDocument encapsulates a generated schema output alongside its format
// identifier. Implementations must ensure Document is JSON-serialisable.
type SchemaDocument struct {
	Format   SchemaFormat `json:"format"`
	Plugin   string       `json:"plugin,omitempty"`
	Version  int          `json:"version"`
	Document any          `json:"document"`
}

// SchemaGenerator transforms a backing object into a schema document.
// Implementations must handle nil inputs by returning an empty document.
type SchemaGenerator interface {
	Generate(value any) (SchemaDocument, error)
}

// FieldDescriptor describes a path and the inferred type.
type FieldDescriptor struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// DefaultSchemaGenerator returns the built-in descriptor-based schema generator.
func DefaultSchemaGenerator() SchemaGenerator {
	return descriptorGenerator{}
}

// Schema describes the current backing object as flattened key paths.
func (m *Manager) Schema() (SchemaDocument, error) {
	generator := m.cfg.schemaGenerator
	if generator == nil {
		generator = DefaultSchemaGenerator()
	}
	doc, err := generator.Generate(m.storage)
	if err != nil {
		return SchemaDocument{}, fmt.Errorf("settings: schema: %w", err)
	}
	doc.Plugin = m.plugin
	doc.Version = m.version
	return doc, nil
}

type descriptorGenerator struct{}

func (descriptorGenerator) Generate(value any) (SchemaDocument, error) {
	descriptors := deriveFieldDescriptors(value, "")
	if descriptors == nil {
		descriptors = []FieldDescriptor{}
	}
	return SchemaDocument{
		Format:   SchemaFormatDescriptors,
		Document: descriptors,
	}, nil
}

func deriveFieldDescriptors(value any, prefix string) []FieldDescriptor {
	switch typed := value.(type) {
	case nil:
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{Path: prefix, Type: "null"}}
	case map[string]any:
		if len(typed) == 0 {
			if prefix == "" {
				return nil
			}
			return []FieldDescriptor{{Path: prefix, Type: "map[string]any"}}
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var fields []FieldDescriptor
		for _, key := range keys {
			fields = append(fields, deriveFieldDescriptors(typed[key], joinPath(prefix, key))...)
		}
		return fields
	case []any:
		elementType := "any"
		if len(typed) > 0 {
			elementType = typeName(typed[0])
		}
		return []FieldDescriptor{{Path: prefix, Type: "[]" + elementType}}
	default:
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{Path: prefix, Type: typeName(typed)}}
	}
}

func typeName(value any) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, PathSeparator)
}
