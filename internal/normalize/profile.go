package normalize

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var defaultProfiles []byte

// Field is one whitelisted output field. Path is a key or a "parent.child"
// pair.
type Field struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Profile reshapes successful payloads for a family of tools.
type Profile struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
	// Container is the key holding the record list. Empty means the payload
	// itself is the list.
	Container string `yaml:"container"`
	// Message is appended to "<tool> Succeeded: "; {count} is replaced.
	Message string  `yaml:"message"`
	Fields  []Field `yaml:"fields"`
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// DefaultProfiles returns the built-in profiles.
func DefaultProfiles() ([]Profile, error) {
	return ParseProfiles(defaultProfiles)
}

// ParseProfiles decodes and validates a profile document.
func ParseProfiles(data []byte) ([]Profile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	for i := range f.Profiles {
		if err := f.Profiles[i].validate(); err != nil {
			return nil, err
		}
	}
	return f.Profiles, nil
}

// LoadProfileDir reads every *.yaml / *.yml file in dir, in name order.
func LoadProfileDir(dir string) ([]Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profile dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []Profile
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", n, err)
		}
		ps, err := ParseProfiles(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		out = append(out, ps...)
	}
	return out, nil
}

func (p *Profile) validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile without name")
	}
	if p.Message == "" {
		p.Message = "Found {count} matching records"
	}
	for _, f := range p.Fields {
		if f.Name == "" {
			return fmt.Errorf("profile %s: field without name", p.Name)
		}
		path := f.Path
		if path == "" {
			path = f.Name
		}
		if len(strings.Split(path, ".")) > 2 {
			return fmt.Errorf("profile %s: field %s: path %q nests deeper than one level", p.Name, f.Name, f.Path)
		}
	}
	return nil
}

// message renders the success message for n records.
func (p *Profile) message(n int) string {
	return strings.ReplaceAll(p.Message, "{count}", fmt.Sprint(n))
}

// project keeps only the whitelisted fields of each object record. Non-object
// records are skipped; missing values become nil.
func (p *Profile) project(records []any) []any {
	if len(p.Fields) == 0 {
		return records
	}
	out := make([]any, 0, len(records))
	for _, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok {
			continue
		}
		row := make(map[string]any, len(p.Fields))
		for _, f := range p.Fields {
			row[f.Name] = lookup(obj, f)
		}
		out = append(out, row)
	}
	return out
}

func lookup(obj map[string]any, f Field) any {
	path := f.Path
	if path == "" {
		path = f.Name
	}
	parent, child, nested := strings.Cut(path, ".")
	v, ok := obj[parent]
	if !ok {
		return nil
	}
	if !nested {
		return v
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return sub[child]
}
