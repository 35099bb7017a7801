package config

import (
	"fmt"
	"sort"
)

// FieldType is the declared scalar type of a configuration field.
type FieldType string

const (
	TypeBool   FieldType = "bool"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeString FieldType = "string"
)

// FieldSpec declares the constraints on one configuration field.
type FieldSpec struct {
	Type      FieldType
	Min       *float64
	Max       *float64
	Enum      []string
	Sensitive bool // encrypted on disk, elided from default exports
}

// Migration transforms a configuration map between schema versions.
type Migration struct {
	FromVersion string
	ToVersion   string
	Migrate     func(map[string]any) (map[string]any, error)
	Rollback    func(map[string]any) (map[string]any, error)
}

// Schema describes every known field, which are required, and how to
// migrate older on-disk versions forward.
type Schema struct {
	Version    string
	Fields     map[string]FieldSpec
	Required   []string
	Migrations map[string]Migration // keyed "from->to"
}

func minmax(lo, hi float64) (*float64, *float64) {
	return &lo, &hi
}

// Supported field names for credentials. Their values are encrypted at rest.
const (
	KeyOpenAIAPIKey    = "openai_api_key"
	KeyAnthropicAPIKey = "anthropic_api_key"
	KeyGoogleAPIKey    = "google_api_key"
)

// DefaultSchema returns the schema for the translator's configuration.
func DefaultSchema() *Schema {
	opacityMin, opacityMax := minmax(0.1, 1.0)
	historyMin, historyMax := minmax(0, 10000)
	fontMin, fontMax := minmax(8, 72)
	timeoutMin, timeoutMax := minmax(5, 300)
	cacheMin, cacheMax := minmax(0, 1000)

	return &Schema{
		Version: "2.0.0",
		Fields: map[string]FieldSpec{
			// Window settings
			"window_opacity":  {Type: TypeFloat, Min: opacityMin, Max: opacityMax},
			"theme":           {Type: TypeString, Enum: []string{"light", "dark", "auto"}},
			"start_minimized": {Type: TypeBool},

			// Translation settings
			"auto_detect_language": {Type: TypeBool},
			"save_history":         {Type: TypeBool},
			"history_limit":        {Type: TypeInt, Min: historyMin, Max: historyMax},

			// Editor settings
			"font_size":         {Type: TypeInt, Min: fontMin, Max: fontMax},
			"show_line_numbers": {Type: TypeBool},
			"word_wrap":         {Type: TypeBool},

			// API settings
			"preferred_provider": {Type: TypeString, Enum: []string{"auto", "openai", "anthropic", "google", "offline"}},
			"translation_timeout": {Type: TypeInt, Min: timeoutMin, Max: timeoutMax},

			// Credentials (encrypted at rest)
			KeyOpenAIAPIKey:    {Type: TypeString, Sensitive: true},
			KeyAnthropicAPIKey: {Type: TypeString, Sensitive: true},
			KeyGoogleAPIKey:    {Type: TypeString, Sensitive: true},

			// Behavior settings
			"copy_on_translate":            {Type: TypeBool},
			"clear_output_on_input_change": {Type: TypeBool},

			// Advanced settings
			"cache_translations": {Type: TypeBool},
			"max_cache_size":     {Type: TypeInt, Min: cacheMin, Max: cacheMax},
			"log_level":          {Type: TypeString, Enum: []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}},
		},
		Required:   []string{"theme", "font_size"},
		Migrations: make(map[string]Migration),
	}
}

// Defaults returns the built-in default values for every field.
func Defaults() map[string]any {
	return map[string]any{
		"window_opacity":  0.95,
		"theme":           "dark",
		"start_minimized": false,

		"auto_detect_language": true,
		"save_history":         true,
		"history_limit":        100,

		"font_size":         11,
		"show_line_numbers": true,
		"word_wrap":         false,

		"preferred_provider":  "auto",
		"translation_timeout": 30,

		KeyOpenAIAPIKey:    "",
		KeyAnthropicAPIKey: "",
		KeyGoogleAPIKey:    "",

		"copy_on_translate":            false,
		"clear_output_on_input_change": true,

		"cache_translations": true,
		"max_cache_size":     100,
		"log_level":          "INFO",
	}
}

// RegisterMigration adds a migration to the schema's table.
func (s *Schema) RegisterMigration(m Migration) {
	if s.Migrations == nil {
		s.Migrations = make(map[string]Migration)
	}
	s.Migrations[m.FromVersion+"->"+m.ToVersion] = m
}

// Validate checks data against the schema and returns one message per
// offending field, sorted for stable output. An empty slice means valid.
func (s *Schema) Validate(data map[string]any) []string {
	var errs []string

	for _, name := range s.Required {
		if _, ok := data[name]; !ok {
			errs = append(errs, fmt.Sprintf("required field %q is missing", name))
		}
	}

	for name, spec := range s.Fields {
		value, ok := data[name]
		if !ok {
			continue
		}
		errs = append(errs, validateField(name, value, spec)...)
	}

	sort.Strings(errs)
	return errs
}

func validateField(name string, value any, spec FieldSpec) []string {
	var errs []string

	switch spec.Type {
	case TypeBool:
		if _, ok := value.(bool); !ok {
			errs = append(errs, fmt.Sprintf("field %q has wrong type: expected bool, got %T", name, value))
			return errs
		}
	case TypeString:
		str, ok := value.(string)
		if !ok {
			errs = append(errs, fmt.Sprintf("field %q has wrong type: expected string, got %T", name, value))
			return errs
		}
		if len(spec.Enum) > 0 {
			found := false
			for _, allowed := range spec.Enum {
				if str == allowed {
					found = true
					break
				}
			}
			if !found {
				errs = append(errs, fmt.Sprintf("field %q has invalid value %q: must be one of %v", name, str, spec.Enum))
			}
		}
	case TypeInt, TypeFloat:
		num, ok := asNumber(value)
		if !ok {
			errs = append(errs, fmt.Sprintf("field %q has wrong type: expected %s, got %T", name, spec.Type, value))
			return errs
		}
		if spec.Type == TypeInt && num != float64(int64(num)) {
			errs = append(errs, fmt.Sprintf("field %q has wrong type: expected int, got fractional value", name))
			return errs
		}
		if spec.Min != nil && num < *spec.Min {
			errs = append(errs, fmt.Sprintf("field %q is below minimum value %v", name, *spec.Min))
		}
		if spec.Max != nil && num > *spec.Max {
			errs = append(errs, fmt.Sprintf("field %q exceeds maximum value %v", name, *spec.Max))
		}
	}

	return errs
}

// asNumber normalizes the numeric types produced by the JSON, YAML, and
// SQLite backends to float64.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
