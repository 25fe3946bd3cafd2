package resolver

import (
	"sort"

	"github.com/conneroisu/etch/internal/coerce"
)

// Kind names a context source variant.
type Kind string

const (
	KindStatic Kind = "static"
	KindEnv    Kind = "env"
	KindCli    Kind = "cli"
)

// StaticSource yields its value, coerced.
type StaticSource struct {
	Value  interface{} `mapstructure:"value" json:"value"`
	Coerce coerce.Type `mapstructure:"coerce" json:"coerce,omitempty"`
}

// EnvSource reads a process environment variable. EnvName defaults to the
// context key. A nil Default means no default was declared.
type EnvSource struct {
	EnvName string      `mapstructure:"env_name" json:"env_name,omitempty"`
	Default interface{} `mapstructure:"default" json:"default,omitempty"`
	Coerce  coerce.Type `mapstructure:"coerce" json:"coerce,omitempty"`
}

// CliSource runs Commands in order; the last command's stdout is the value.
type CliSource struct {
	Commands []string    `mapstructure:"commands" json:"commands"`
	Coerce   coerce.Type `mapstructure:"coerce" json:"coerce,omitempty"`
}

// Sources holds every declared context source keyed by context name.
type Sources struct {
	Static map[string]StaticSource `mapstructure:"static" json:"static,omitempty"`
	Env    map[string]EnvSource    `mapstructure:"env" json:"env,omitempty"`
	Cli    map[string]CliSource    `mapstructure:"cli" json:"cli,omitempty"`
}

// Len returns the number of declared sources across all kinds.
func (s Sources) Len() int {
	return len(s.Static) + len(s.Env) + len(s.Cli)
}

// Duplicate is a context key declared by more than one source kind.
type Duplicate struct {
	Key   string
	Kinds []Kind
}

// Duplicates reports every key defined by more than one source kind, sorted
// by key.
func (s Sources) Duplicates() []Duplicate {
	seen := make(map[string][]Kind, s.Len())
	for key := range s.Static {
		seen[key] = append(seen[key], KindStatic)
	}
	for key := range s.Env {
		seen[key] = append(seen[key], KindEnv)
	}
	for key := range s.Cli {
		seen[key] = append(seen[key], KindCli)
	}

	var dups []Duplicate
	for key, kinds := range seen {
		if len(kinds) > 1 {
			dups = append(dups, Duplicate{Key: key, Kinds: kinds})
		}
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i].Key < dups[j].Key })

	return dups
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}
