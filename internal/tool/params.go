package tool

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"secopsmcp/internal/domain"
)

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
	Enum        []string
	// Items is the JSON Schema of array elements; nil means any.
	Items map[string]any
	// Default is advertised to clients but not applied by the schema.
	Default any
}

// ToolParameters builds a JSON Schema "parameters" object for a tool.
func ToolParameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Type == "array" {
			items := p.Items
			if items == nil {
				items = map[string]any{}
			}
			prop["items"] = items
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// argError is a caller input problem. It is reported as Unexpected since the
// error taxonomy has no dedicated validation kind.
func argError(format string, a ...any) *domain.Error {
	return domain.Errorf(domain.Unexpected, format, a...)
}

// ArgsPresent reports whether key was supplied with a non-null value.
func ArgsPresent(args map[string]any, key string) bool {
	if args == nil {
		return false
	}
	v, ok := args[key]
	return ok && v != nil
}

func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// RequireString returns a non-empty string argument or an error.
func RequireString(args map[string]any, key string) (string, error) {
	s := strings.TrimSpace(ArgsString(args, key))
	if s == "" {
		return "", argError("missing required argument %q", key)
	}
	return s, nil
}

// ArgsStringSlice accepts a list of scalars or a single string.
func ArgsStringSlice(args map[string]any, key string) ([]string, error) {
	if !ArgsPresent(args, key) {
		return nil, nil
	}
	switch v := args[key].(type) {
	case []string:
		return append([]string(nil), v...), nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case json.Number, float64, int, int64, bool:
				out = append(out, fmt.Sprint(s))
			default:
				return nil, argError("argument %q item %d must be a string", key, i)
			}
		}
		return out, nil
	default:
		return nil, argError("argument %q must be a list of strings", key)
	}
}

// ArgsBool converts booleans and "true"/"false" strings.
func ArgsBool(args map[string]any, key string) (bool, error) {
	switch v := args[key].(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, argError("argument %q must be a boolean", key)
		}
		return b, nil
	default:
		return false, argError("argument %q must be a boolean", key)
	}
}

// ArgsInt converts JSON numbers and numeric strings to an integer.
func ArgsInt(args map[string]any, key string) (int64, error) {
	switch v := args[key].(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, argError("argument %q must be an integer", key)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, argError("argument %q must be an integer", key)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, argError("argument %q must be an integer", key)
		}
		return n, nil
	default:
		return 0, argError("argument %q must be an integer", key)
	}
}

// ArgsNumber converts JSON numbers and numeric strings to a float.
func ArgsNumber(args map[string]any, key string) (float64, error) {
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, argError("argument %q must be a number", key)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, argError("argument %q must be a number", key)
		}
		return f, nil
	default:
		return 0, argError("argument %q must be a number", key)
	}
}

// ArgsEntities decodes a list of {Identifier, EntityType} objects.
func ArgsEntities(args map[string]any, key string) ([]domain.TargetEntity, error) {
	if !ArgsPresent(args, key) {
		return nil, nil
	}
	list, ok := args[key].([]any)
	if !ok {
		return nil, argError("argument %q must be a list of entities", key)
	}
	out := make([]domain.TargetEntity, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, argError("argument %q item %d must be an object", key, i)
		}
		id, _ := obj["Identifier"].(string)
		typ, _ := obj["EntityType"].(string)
		if id == "" || typ == "" {
			return nil, argError("argument %q item %d needs Identifier and EntityType", key, i)
		}
		out = append(out, domain.TargetEntity{Identifier: id, EntityType: domain.EntityType(typ)})
	}
	return out, nil
}

// entitySchema is the JSON Schema for one target entity.
var entitySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"Identifier": map[string]any{"type": "string"},
		"EntityType": map[string]any{"type": "string"},
	},
	"required": []string{"Identifier", "EntityType"},
}
