package engine

import (
	"fmt"
	"sort"

	"github.com/nikolalohinski/gonja/exec"

	"github.com/conneroisu/etch/internal/coerce"
)

// callable adapts the registered function name to gonja's variadic calling
// convention. Positional and keyword arguments are converted to plain values,
// and the result is handed back to the template as a value.
func (e *Engine) callable(name string) func(*exec.VarArgs) (*exec.Value, error) {
	return func(va *exec.VarArgs) (*exec.Value, error) {
		args, kwargs, err := fromVarArgs(va)
		if err != nil {
			return exec.AsValue(nil), fmt.Errorf("extension function '%s': %w", name, err)
		}

		result, err := e.registry.Invoke(e.session, name, args, kwargs)
		if err != nil {
			return exec.AsValue(nil), err
		}

		return exec.AsValue(result), nil
	}
}

func fromVarArgs(va *exec.VarArgs) ([]interface{}, map[string]interface{}, error) {
	args := make([]interface{}, len(va.Args))
	for i, arg := range va.Args {
		v, err := fromValue(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}

	keys := make([]string, 0, len(va.KwArgs))
	for key := range va.KwArgs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	kwargs := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		v, err := fromValue(va.KwArgs[key])
		if err != nil {
			return nil, nil, fmt.Errorf("argument %s: %w", key, err)
		}
		kwargs[key] = v
	}

	return args, kwargs, nil
}

func fromValue(v *exec.Value) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	simple := v.ToGoSimpleType(false)
	if err, ok := simple.(error); ok {
		return nil, err
	}

	return coerce.Normalize(simple), nil
}
