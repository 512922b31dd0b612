package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnresolved reports ${VAR} references with neither an environment value
// nor a default.
var ErrUnresolved = errors.New("config: unresolved variables")

// varRef matches ${VAR} and ${VAR:-default}.
var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads the file at path and parses it with Parse.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands variable references in raw and decodes the result. Unknown
// top-level keys are rejected; module bodies are decoded later by their
// owning module.
func Parse(raw []byte) (*Config, error) {
	expanded, missing := expand(raw, os.LookupEnv)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, strings.Join(missing, ", "))
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	return &cfg, nil
}

// expand substitutes references line by line. Comment lines are left alone
// so a commented-out ${SECRET} does not have to be set.
func expand(raw []byte, lookup func(string) (string, bool)) ([]byte, []string) {
	var missing []string
	lines := bytes.SplitAfter(raw, []byte("\n"))
	for i, line := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("#")) {
			continue
		}
		lines[i] = varRef.ReplaceAllFunc(line, func(ref []byte) []byte {
			m := varRef.FindSubmatch(ref)
			if v, ok := lookup(string(m[1])); ok {
				return []byte(v)
			}
			if m[2] != nil {
				return m[2]
			}
			missing = append(missing, string(m[1]))
			return ref
		})
	}
	slices.Sort(missing)
	return bytes.Join(lines, nil), slices.Compact(missing)
}
