//go:build property
// +build property

package coerce

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCoercionRoundTripProperties checks that stringified scalars coerce back
// to the value they were produced from.
func TestCoercionRoundTripProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("int round trip", prop.ForAll(
		func(v int64) bool {
			got, err := Coerce(strconv.FormatInt(v, 10), Int)
			return err == nil && got == v
		},
		gen.Int64Range(-1<<40, 1<<40),
	))

	properties.Property("float round trip", prop.ForAll(
		func(v float64) bool {
			got, err := Coerce(" "+strconv.FormatFloat(v, 'g', -1, 64)+" ", Float)
			return err == nil && got == v
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("bool round trip", prop.ForAll(
		func(v bool) bool {
			got, err := Coerce(strconv.FormatBool(v), Bool)
			return err == nil && got == v
		},
		gen.Bool(),
	))

	properties.Property("str is identity on trimmed strings", prop.ForAll(
		func(v string) bool {
			got, err := Coerce(v, Str)
			return err == nil && got == v
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
