package schema

// JSONSchema represents a JSON Schema for validation compatible with draft-07.
// Node type config schemas are expressed with it and surfaced through the
// node catalog so authoring tools can render config forms.
type JSONSchema struct {
	Type                 string                 `json:"type"`
	Description          string                 `json:"description,omitempty"`
	Properties           map[string]SchemaField `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
}

// SchemaField represents a field within a schema
type SchemaField struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Default     any                    `json:"default,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
	MinLength   *int                   `json:"minLength,omitempty"`
	MaxLength   *int                   `json:"maxLength,omitempty"`
	Pattern     string                 `json:"pattern,omitempty"`
	Items       *SchemaField           `json:"items,omitempty"`
	Properties  map[string]SchemaField `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
}

// NewObjectSchema creates a new object schema with the given properties and required fields
func NewObjectSchema(properties map[string]SchemaField, required []string) JSONSchema {
	return JSONSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// NewStringField creates a new string field with the given description
func NewStringField(description string) SchemaField {
	return SchemaField{
		Type:        "string",
		Description: description,
	}
}

// NewIntegerField creates a new integer field with the given description
func NewIntegerField(description string) SchemaField {
	return SchemaField{
		Type:        "integer",
		Description: description,
	}
}

// NewNumberField creates a new number field with the given description
func NewNumberField(description string) SchemaField {
	return SchemaField{
		Type:        "number",
		Description: description,
	}
}

// NewBooleanField creates a new boolean field with the given description
func NewBooleanField(description string) SchemaField {
	return SchemaField{
		Type:        "boolean",
		Description: description,
	}
}

// NewArrayField creates a new array field whose elements match items
func NewArrayField(description string, items SchemaField) SchemaField {
	return SchemaField{
		Type:        "array",
		Description: description,
		Items:       &items,
	}
}

// NewObjectField creates a new free-form object field
func NewObjectField(description string) SchemaField {
	return SchemaField{
		Type:        "object",
		Description: description,
	}
}

// WithEnum adds enum constraint to the field
func (f SchemaField) WithEnum(values ...string) SchemaField {
	f.Enum = values
	return f
}

// WithMinMax adds minimum and maximum constraints to numeric fields
func (f SchemaField) WithMinMax(min, max float64) SchemaField {
	f.Minimum = &min
	f.Maximum = &max
	return f
}

// WithMin adds minimum constraint to numeric fields
func (f SchemaField) WithMin(min float64) SchemaField {
	f.Minimum = &min
	return f
}

// WithMax adds maximum constraint to numeric fields
func (f SchemaField) WithMax(max float64) SchemaField {
	f.Maximum = &max
	return f
}

// WithPattern adds a regular expression constraint to string fields
func (f SchemaField) WithPattern(pattern string) SchemaField {
	f.Pattern = pattern
	return f
}

// WithDefault records the value applied when the field is omitted
func (f SchemaField) WithDefault(value any) SchemaField {
	f.Default = value
	return f
}
