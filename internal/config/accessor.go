package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// tree renders cfg as the generic JSON document the dot paths address.
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "soar.url").
// List elements are addressed by index ("security.whitelist.0").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}
	var current any = m
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid list index %q in %s", key, path)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("%s: %T has no field %q", path, current, key)
		}
	}
	return current, nil
}

// SetByPath parses raw according to the type of the field at path and stores
// it in cfg. Lists take comma separated values. cfg is left untouched on
// error.
func SetByPath(cfg *Config, path string, raw string) error {
	m, err := tree(cfg)
	if err != nil {
		return err
	}
	parts := strings.Split(path, ".")
	parent := m
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			if _, exists := parent[key]; exists {
				return fmt.Errorf("%s: %q is not a section", path, key)
			}
			child = map[string]any{}
			parent[key] = child
		}
		parent = child
	}
	last := parts[len(parts)-1]

	var candidates []any
	if current, ok := parent[last]; ok && current != nil {
		v, err := coerce(current, raw)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		candidates = []any{v}
	} else {
		// Omitted fields (empty lists, maps) have no type to follow.
		candidates = []any{raw, splitList(raw)}
		if b, err := strconv.ParseBool(raw); err == nil {
			candidates = append(candidates, b)
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			candidates = append(candidates, n)
		}
	}

	for _, v := range candidates {
		parent[last] = v
		next, err := decode(m)
		if err != nil {
			continue
		}
		if got, err := GetByPath(next, path); err == nil && sameValue(got, v) {
			*cfg = *next
			return nil
		}
	}
	return fmt.Errorf("unknown config path or invalid value: %s", path)
}

func coerce(current any, raw string) (any, error) {
	switch current.(type) {
	case string:
		return raw, nil
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("want true or false, got %q", raw)
		}
		return b, nil
	case float64:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("want a number, got %q", raw)
		}
		return n, nil
	case []any:
		return splitList(raw), nil
	default:
		return nil, fmt.Errorf("cannot set a %T from the command line", current)
	}
}

func splitList(raw string) []any {
	out := []any{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func decode(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	next := &Config{}
	if err := json.Unmarshal(data, next); err != nil {
		return nil, err
	}
	return next, nil
}

// sameValue compares through JSON so 5 and 5.0 match.
func sameValue(a, b any) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	var va, vb any
	json.Unmarshal(ja, &va)
	json.Unmarshal(jb, &vb)
	return reflect.DeepEqual(va, vb)
}

// Sanitize returns a copy of the config with secrets masked.
func Sanitize(cfg *Config) *Config {
	safe := *cfg
	safe.SOAR.AppKey = maskString(cfg.SOAR.AppKey)
	safe.Falcon.ClientSecret = maskString(cfg.Falcon.ClientSecret)
	safe.Sandbox.AppKey = maskString(cfg.Sandbox.AppKey)
	safe.Sandbox.ClientSecret = maskString(cfg.Sandbox.ClientSecret)
	return &safe
}

// maskString keeps the first and last 4 characters of long secrets.
func maskString(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every leaf path with its current value.
func ListPaths(cfg *Config) map[string]any {
	m, err := tree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(path, sub, out)
			continue
		}
		out[path] = v
	}
}
