package formschema

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load decodes a schema from YAML.
func Load(r io.Reader) (Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Schema{}, fmt.Errorf("decode form schema: %w", err)
	}
	return s, nil
}

// LoadFile decodes a schema from a YAML file.
func LoadFile(path string) (Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return Schema{}, err
	}
	defer f.Close()
	s, err := Load(f)
	if err != nil {
		return Schema{}, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// LoadDir reads every *.yaml / *.yml file in dir keyed by schema name.
// A missing directory yields an empty map.
func LoadDir(dir string) (map[string]Schema, error) {
	out := make(map[string]Schema)
	if dir == "" {
		return out, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("read schema directory %s: %w", dir, err)
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		s, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out[s.Name] = s
	}
	return out, nil
}

// Merge applies override on top of base. Overriding fields replace the base
// field with the same name; fields unknown to base are ignored since nothing
// could bind them.
func Merge(base, override Schema) Schema {
	out := Schema{Name: base.Name, Title: base.Title}
	if override.Title != "" {
		out.Title = override.Title
	}
	byName := make(map[string]Field, len(override.Fields))
	for _, f := range override.Fields {
		byName[f.Name] = f
	}
	out.Fields = make([]Field, len(base.Fields))
	for i, f := range base.Fields {
		if o, ok := byName[f.Name]; ok {
			if o.Type == "" {
				o.Type = f.Type
			}
			f = o
		}
		out.Fields[i] = f
	}
	return out
}

// Description is the JSON document UI clients render a form from.
type Description struct {
	Schema   Schema `json:"schema"`
	Defaults Values `json:"defaults"`
}

// Describe returns the schema together with its default values.
func (s Schema) Describe() Description {
	return Description{Schema: s, Defaults: s.Defaults()}
}
