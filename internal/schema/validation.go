package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// SchemaValidationError describes a single constraint violation found while
// validating a value against a schema.
type SchemaValidationError struct {
	Path    string
	Message string
}

func (e *SchemaValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates decoded JSON values (maps, slices, primitives) against
// a JSONSchema. It is safe for concurrent use.
type Validator struct {
	schema *JSONSchema
}

// NewValidator creates a validator for the given schema.
func NewValidator(schema *JSONSchema) *Validator {
	return &Validator{schema: schema}
}

// ValidateMap validates an already-decoded object against the schema and
// returns every violation found. A nil map is treated as an empty object so
// schemas with no required fields accept an absent config block.
func (v *Validator) ValidateMap(value map[string]any) []SchemaValidationError {
	if value == nil {
		value = map[string]any{}
	}
	if v.schema == nil || v.schema.Type != "object" {
		return nil
	}
	return v.validateObject(value, v.schema.Properties, v.schema.Required, "")
}

func (v *Validator) validateObject(obj map[string]any, properties map[string]SchemaField, required []string, path string) []SchemaValidationError {
	var errs []SchemaValidationError

	for _, name := range required {
		if _, ok := obj[name]; !ok {
			errs = append(errs, SchemaValidationError{
				Path:    joinPath(path, name),
				Message: "required field is missing",
			})
		}
	}

	for name, field := range properties {
		raw, ok := obj[name]
		if !ok {
			continue
		}
		errs = append(errs, v.validateField(raw, field, joinPath(path, name))...)
	}

	return errs
}

func (v *Validator) validateField(value any, field SchemaField, path string) []SchemaValidationError {
	if value == nil {
		return nil
	}

	switch field.Type {
	case "string":
		return v.validateString(value, field, path)
	case "number", "integer":
		return v.validateNumber(value, field, path)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeMismatch(path, "boolean", value)
		}
		return nil
	case "array":
		return v.validateArray(value, field, path)
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return typeMismatch(path, "object", value)
		}
		return v.validateObject(obj, field.Properties, field.Required, path)
	default:
		return nil
	}
}

func (v *Validator) validateString(value any, field SchemaField, path string) []SchemaValidationError {
	s, ok := value.(string)
	if !ok {
		return typeMismatch(path, "string", value)
	}

	var errs []SchemaValidationError
	if field.MinLength != nil && len(s) < *field.MinLength {
		errs = append(errs, SchemaValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d is below minimum %d", len(s), *field.MinLength),
		})
	}
	if field.MaxLength != nil && len(s) > *field.MaxLength {
		errs = append(errs, SchemaValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d exceeds maximum %d", len(s), *field.MaxLength),
		})
	}
	if field.Pattern != "" {
		re, err := regexp.Compile(field.Pattern)
		if err != nil {
			errs = append(errs, SchemaValidationError{
				Path:    path,
				Message: fmt.Sprintf("invalid pattern %q: %v", field.Pattern, err),
			})
		} else if !re.MatchString(s) {
			errs = append(errs, SchemaValidationError{
				Path:    path,
				Message: fmt.Sprintf("value %q does not match pattern %q", s, field.Pattern),
			})
		}
	}
	if len(field.Enum) > 0 && !containsString(field.Enum, s) {
		errs = append(errs, SchemaValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %q is not one of [%s]", s, strings.Join(field.Enum, ", ")),
		})
	}
	return errs
}

func (v *Validator) validateNumber(value any, field SchemaField, path string) []SchemaValidationError {
	n, ok := toFloat(value)
	if !ok {
		return typeMismatch(path, field.Type, value)
	}

	var errs []SchemaValidationError
	if field.Type == "integer" && n != float64(int64(n)) {
		errs = append(errs, SchemaValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %v is not an integer", value),
		})
	}
	if field.Minimum != nil && n < *field.Minimum {
		errs = append(errs, SchemaValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %v is below minimum %v", n, *field.Minimum),
		})
	}
	if field.Maximum != nil && n > *field.Maximum {
		errs = append(errs, SchemaValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %v exceeds maximum %v", n, *field.Maximum),
		})
	}
	return errs
}

func (v *Validator) validateArray(value any, field SchemaField, path string) []SchemaValidationError {
	items, ok := value.([]any)
	if !ok {
		return typeMismatch(path, "array", value)
	}
	if field.Items == nil {
		return nil
	}

	var errs []SchemaValidationError
	for i, item := range items {
		errs = append(errs, v.validateField(item, *field.Items, fmt.Sprintf("%s[%d]", path, i))...)
	}
	return errs
}

func typeMismatch(path, expected string, value any) []SchemaValidationError {
	return []SchemaValidationError{{
		Path:    path,
		Message: fmt.Sprintf("expected %s, got %T", expected, value),
	}}
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// toFloat normalizes the numeric types produced by JSON and YAML decoders.
func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
