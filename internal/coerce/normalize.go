package coerce

import (
	"fmt"
	"time"
)

// Normalize maps decoder-specific Go values onto the JSON-like value model:
// every integer kind becomes int64, float32 becomes float64, and nested
// maps with non-string keys are re-keyed by their printed form. Decoder
// specific scalars such as TOML local dates become their string form.
func Normalize(value interface{}) interface{} {
	return normalize(value)
}

func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, bool, int64, float64, string:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = normalize(elem)
		}
		return out
	case []string:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = elem
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, elem := range v {
			out[key] = normalize(elem)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, elem := range v {
			out[fmt.Sprint(key)] = normalize(elem)
		}
		return out
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}
