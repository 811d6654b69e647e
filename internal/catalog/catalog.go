// Package catalog holds the integration actions exposed as tools.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed integrations/*.yaml
var builtin embed.FS

// Parameter types accepted in catalog files.
const (
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeArray   = "array"
)

// reserved are the argument names every action tool already takes, plus
// the confirmation flag added by the security gate.
var reserved = map[string]bool{
	"case_id":                 true,
	"alert_group_identifiers": true,
	"target_entities":         true,
	"scope":                   true,
	"confirm":                 true,
}

// Parameter is one script parameter. Name is sent to the backend verbatim.
type Parameter struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
	Description string `yaml:"description"`
}

// Key is the tool argument name for the parameter.
func (p Parameter) Key() string { return ToSnakeCase(p.Name) }

// Action is one backend action of an integration.
type Action struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Provider    string      `yaml:"provider"`
	Profile     string      `yaml:"profile"`
	Parameters  []Parameter `yaml:"parameters"`
}

// Integration is a vendor product and its actions.
type Integration struct {
	Name        string   `yaml:"integration"`
	Description string   `yaml:"description"`
	Actions     []Action `yaml:"actions"`
}

// Parse decodes and validates one catalog document.
func Parse(data []byte) (Integration, error) {
	var in Integration
	if err := yaml.Unmarshal(data, &in); err != nil {
		return Integration{}, fmt.Errorf("parse catalog: %w", err)
	}
	if in.Name == "" {
		return Integration{}, fmt.Errorf("catalog missing integration name")
	}
	seen := make(map[string]bool, len(in.Actions))
	for i, a := range in.Actions {
		if a.Name == "" {
			return Integration{}, fmt.Errorf("%s: action %d has no name", in.Name, i)
		}
		tn := ToolName(in.Name, a.Name)
		if seen[tn] {
			return Integration{}, fmt.Errorf("%s: duplicate tool %s", in.Name, tn)
		}
		seen[tn] = true
		keys := make(map[string]bool, len(a.Parameters))
		for j := range a.Parameters {
			p := &in.Actions[i].Parameters[j]
			k := p.Key()
			if reserved[k] || keys[k] {
				return Integration{}, fmt.Errorf("%s: %s: parameter %q clashes on argument %q", in.Name, a.Name, p.Name, k)
			}
			keys[k] = true
			if p.Type == "" {
				p.Type = TypeString
			}
			switch p.Type {
			case TypeString, TypeBoolean, TypeInteger, TypeNumber, TypeArray:
			default:
				return Integration{}, fmt.Errorf("%s: %s: parameter %q has unknown type %q", in.Name, a.Name, p.Name, p.Type)
			}
		}
	}
	return in, nil
}

// Builtin returns the embedded integrations sorted by name.
func Builtin() ([]Integration, error) {
	return loadFS(builtin, "integrations")
}

func loadFS(fsys fs.FS, dir string) ([]Integration, error) {
	names, err := fs.Glob(fsys, dir+"/*.yaml")
	if err != nil {
		return nil, err
	}
	var out []Integration
	for _, n := range names {
		data, err := fs.ReadFile(fsys, n)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", n, err)
		}
		in, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		out = append(out, in)
	}
	sortByName(out)
	return out, nil
}

// LoadFromDirectory loads extra integrations from YAML files in dir. Files
// that fail to parse are logged and skipped.
func LoadFromDirectory(dir string, logger *slog.Logger) ([]Integration, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("catalog directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}

	var out []Integration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read catalog file", "path", path, "err", err)
			continue
		}
		in, err := Parse(data)
		if err != nil {
			logger.Warn("cannot parse catalog file", "path", path, "err", err)
			continue
		}
		logger.Info("loaded catalog file", "integration", in.Name, "actions", len(in.Actions), "path", path)
		out = append(out, in)
	}
	sortByName(out)
	return out, nil
}

// Merge combines catalogs; an integration in extra replaces a built-in one
// with the same normalized name.
func Merge(base, extra []Integration) []Integration {
	idx := make(map[string]int, len(base))
	out := make([]Integration, len(base))
	copy(out, base)
	for i, in := range out {
		idx[NormalizeName(in.Name)] = i
	}
	for _, in := range extra {
		if i, ok := idx[NormalizeName(in.Name)]; ok {
			out[i] = in
			continue
		}
		idx[NormalizeName(in.Name)] = len(out)
		out = append(out, in)
	}
	sortByName(out)
	return out
}

// Filter keeps integrations whose normalized name is in names. An empty
// selection keeps nothing. Unknown names are returned for reporting.
func Filter(all []Integration, names []string) (selected []Integration, unknown []string) {
	want := make(map[string]string, len(names))
	for _, n := range names {
		if k := NormalizeName(strings.TrimSpace(n)); k != "" {
			want[k] = n
		}
	}
	for _, in := range all {
		k := NormalizeName(in.Name)
		if _, ok := want[k]; ok {
			selected = append(selected, in)
			delete(want, k)
		}
	}
	for _, n := range want {
		unknown = append(unknown, n)
	}
	sort.Strings(unknown)
	return selected, unknown
}

// ParseSelection splits a comma separated --integrations value.
func ParseSelection(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortByName(in []Integration) {
	sort.Slice(in, func(i, j int) bool { return in[i].Name < in[j].Name })
}
