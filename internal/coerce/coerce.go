// Package coerce converts loosely typed context values into a declared
// scalar type. Values use the JSON-like model shared by the whole tool:
// nil, bool, int64, float64, string, []interface{} and
// map[string]interface{}.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/oj"

	etcherrors "github.com/conneroisu/etch/internal/errors"
)

// Type is a coercion target.
type Type string

const (
	None  Type = ""
	JSON  Type = "json"
	Str   Type = "str"
	Int   Type = "int"
	Float Type = "float"
	Bool  Type = "bool"
)

// maxReprLen bounds the rendering of a rejected input inside error messages.
const maxReprLen = 300

// Types lists every valid non-empty target.
var Types = []Type{JSON, Str, Int, Float, Bool}

// Valid reports whether t is a known target (None included).
func (t Type) Valid() bool {
	switch t {
	case None, JSON, Str, Int, Float, Bool:
		return true
	}

	return false
}

// Coerce converts value to target. Strings are always trimmed first, even
// when target is None.
func Coerce(value interface{}, target Type) (interface{}, error) {
	value = normalize(value)
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}

	if target == None {
		return value, nil
	}

	var (
		result interface{}
		err    error
	)
	switch target {
	case JSON:
		result, err = toJSON(value)
	case Str:
		result, err = toStr(value)
	case Int:
		result, err = toInt(value)
	case Float:
		result, err = toFloat(value)
	case Bool:
		result, err = toBool(value)
	default:
		err = fmt.Errorf("unknown coercion type '%s'", target)
	}

	if err != nil {
		return nil, etcherrors.NewCoercionError(
			fmt.Sprintf("Failed to coerce to type: '%s'. Input: %s", target, Repr(value)),
			err,
		).WithContext("type", string(target))
	}

	return result, nil
}

// Repr renders value for error messages, truncated to 300 characters with
// a trailing ellipsis.
func Repr(value interface{}) string {
	repr := oj.JSON(value, &oj.Options{Sort: true})
	runes := []rune(repr)
	if len(runes) > maxReprLen {
		return string(runes[:maxReprLen]) + "..."
	}

	return repr
}

// Stringify renders a non-string value as compact JSON.
func Stringify(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}

	return oj.JSON(value, &oj.Options{Sort: true})
}

func toJSON(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("String input expected for json.")
	}
	parsed, err := oj.ParseString(s)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse string as valid json: %w", err)
	}

	return normalize(parsed), nil
}

func toStr(value interface{}) (interface{}, error) {
	return Stringify(value), nil
}

func toInt(value interface{}) (interface{}, error) {
	f, err := toFinite(value, "Ints can only be coerced from ints, floats and strings.")
	if err != nil {
		return nil, err
	}
	if v, ok := value.(int64); ok {
		return v, nil
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("Number is out of range for an int.")
	}

	return int64(math.Round(f)), nil
}

func toFloat(value interface{}) (interface{}, error) {
	f, err := toFinite(value, "Floats can only be coerced from floats, ints and strings.")
	if err != nil {
		return nil, err
	}

	return f, nil
}

// toFinite reads value as a float64, rejecting NaN and infinities. Errors
// never repeat the input; the caller reports it through Repr.
func toFinite(value interface{}, wrongType string) (float64, error) {
	var f float64
	switch v := value.(type) {
	case int64:
		return float64(v), nil
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("String was not a valid int or float.")
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%s", wrongType)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("Number is not finite.")
	}

	return f, nil
}

func toBool(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, fmt.Errorf("Bools can only be coerced from 0/1 integer types.")
	case string:
		switch strings.ToLower(v) {
		case "1", "true", "y":
			return true, nil
		case "0", "false", "n":
			return false, nil
		}
		return nil, fmt.Errorf("Bools can only be coerced from strings 'true'/'false'/'y'/'n'/'0'/'1'.")
	default:
		return nil, fmt.Errorf("Bools can only be coerced from bools, 0/1 integers and strings.")
	}
}
