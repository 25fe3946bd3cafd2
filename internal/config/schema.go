package config

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/conneroisu/etch/internal/coerce"
)

// Issue is one schema violation, attributed to a path within the document.
type Issue struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (i *Issue) Error() string {
	msg := fmt.Sprintf("%s: %s", i.Field, i.Message)
	if len(i.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(quoteAll(i.Suggestions), " or "))
	}

	return msg
}

// Issues returns the individual violations inside an error produced by
// ValidateTree.
func Issues(err error) []*Issue {
	var issues []*Issue
	for _, e := range multierr.Errors(err) {
		if issue, ok := e.(*Issue); ok {
			issues = append(issues, issue)
		}
	}

	return issues
}

var (
	topLevelKeys = []string{"context", "exclude", "engine", "ignore_files", "setup_commands"}
	contextKeys  = []string{"static", "env", "cli"}
	staticKeys   = []string{"value", "coerce"}
	envKeys      = []string{"env_name", "default", "coerce"}
	cliKeys      = []string{"commands", "coerce"}
	engineKeys   = []string{
		"block_start", "block_end",
		"variable_start", "variable_end",
		"comment_start", "comment_end",
		"keep_trailing_newline", "allow_undefined", "custom_extensions",
	}
)

// ValidateTree checks a decoded document. Every violation is collected; the
// returned error combines them with multierr.
func ValidateTree(tree map[string]interface{}) error {
	v := &schemaValidator{}
	v.checkKeys("", tree, topLevelKeys)

	if raw, ok := tree["context"]; ok {
		v.validateContext(raw)
	}
	if raw, ok := tree["engine"]; ok {
		v.validateEngine(raw)
	}
	for _, key := range []string{"exclude", "ignore_files", "setup_commands"} {
		if raw, ok := tree[key]; ok {
			v.stringList(key, raw, false, false)
		}
	}

	return v.err
}

type schemaValidator struct {
	err error
}

func (v *schemaValidator) add(field string, value interface{}, format string, args ...interface{}) {
	v.err = multierr.Append(v.err, &Issue{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *schemaValidator) table(field string, raw interface{}) (map[string]interface{}, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		v.add(field, raw, "expected a table, got %s", describe(raw))
	}

	return m, ok
}

func (v *schemaValidator) checkKeys(prefix string, m map[string]interface{}, allowed []string) {
	for _, key := range sortedKeys(m) {
		if contains(allowed, key) {
			continue
		}
		v.err = multierr.Append(v.err, &Issue{
			Field:       join(prefix, key),
			Value:       m[key],
			Message:     "unknown field",
			Suggestions: suggest(key, allowed),
		})
	}
}

func (v *schemaValidator) validateContext(raw interface{}) {
	ctx, ok := v.table("context", raw)
	if !ok {
		return
	}
	v.checkKeys("context", ctx, contextKeys)

	for _, kind := range contextKeys {
		rawKind, ok := ctx[kind]
		if !ok {
			continue
		}
		field := "context." + kind
		sources, ok := v.table(field, rawKind)
		if !ok {
			continue
		}
		for _, name := range sortedKeys(sources) {
			v.validateSource(kind, field+"."+name, sources[name])
		}
	}
}

func (v *schemaValidator) validateSource(kind, field string, raw interface{}) {
	src, ok := v.table(field, raw)
	if !ok {
		return
	}

	switch kind {
	case "static":
		v.checkKeys(field, src, staticKeys)
		if _, ok := src["value"]; !ok {
			v.add(field+".value", nil, "missing required field")
		}
	case "env":
		v.checkKeys(field, src, envKeys)
		if name, ok := src["env_name"]; ok {
			if s, isStr := name.(string); !isStr || strings.TrimSpace(s) == "" {
				v.add(field+".env_name", name, "expected a non-empty string")
			}
		}
	case "cli":
		v.checkKeys(field, src, cliKeys)
		commands, ok := src["commands"]
		if !ok {
			v.add(field+".commands", nil, "missing required field")
		} else {
			v.stringList(field+".commands", commands, true, true)
		}
	}

	if target, ok := src["coerce"]; ok {
		s, isStr := target.(string)
		if !isStr || s == "" || !coerce.Type(s).Valid() {
			v.add(field+".coerce", target, "expected one of %s", strings.Join(typeNames(), ", "))
		}
	}
}

func (v *schemaValidator) validateEngine(raw interface{}) {
	engine, ok := v.table("engine", raw)
	if !ok {
		return
	}
	v.checkKeys("engine", engine, engineKeys)

	for _, key := range engineKeys[:6] {
		value, ok := engine[key]
		if !ok {
			continue
		}
		if s, isStr := value.(string); !isStr || s == "" {
			v.add("engine."+key, value, "expected a non-empty string")
		}
	}
	for _, key := range []string{"keep_trailing_newline", "allow_undefined"} {
		if value, ok := engine[key]; ok {
			if _, isBool := value.(bool); !isBool {
				v.add("engine."+key, value, "expected a boolean, got %s", describe(value))
			}
		}
	}
	if value, ok := engine["custom_extensions"]; ok {
		v.stringList("engine.custom_extensions", value, false, true)
	}
}

// stringList checks raw is a list of strings. required demands at least one
// element; noBlank rejects entries that are empty after trimming.
func (v *schemaValidator) stringList(field string, raw interface{}, required, noBlank bool) {
	list, ok := raw.([]interface{})
	if !ok {
		v.add(field, raw, "expected a list of strings, got %s", describe(raw))
		return
	}
	if required && len(list) == 0 {
		v.add(field, raw, "expected at least one entry")
	}
	for i, elem := range list {
		s, isStr := elem.(string)
		if !isStr {
			v.add(fmt.Sprintf("%s[%d]", field, i), elem, "expected a string, got %s", describe(elem))
			continue
		}
		if noBlank && strings.TrimSpace(s) == "" {
			v.add(fmt.Sprintf("%s[%d]", field, i), elem, "expected a non-empty string")
		}
	}
}

func describe(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "list"
	case map[string]interface{}:
		return "table"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func typeNames() []string {
	names := make([]string, len(coerce.Types))
	for i, t := range coerce.Types {
		names[i] = string(t)
	}

	return names
}

// suggest returns allowed keys within edit distance 2 of key.
func suggest(key string, allowed []string) []string {
	var out []string
	for _, candidate := range allowed {
		if levenshtein(key, candidate) <= 2 {
			out = append(out, candidate)
		}
	}

	return out
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}

	return prefix + "." + key
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}

func quoteAll(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = "'" + s + "'"
	}

	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}
