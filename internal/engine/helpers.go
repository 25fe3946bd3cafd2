package engine

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/nikolalohinski/gonja/exec"
	"github.com/ohler55/ojg/jp"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/etch/internal/coerce"
)

// helperFilters extend gonja's builtin filters.
var helperFilters = exec.FilterSet{
	"pluralize":      filterPluralize,
	"items":          filterItems,
	"b64encode":      filterB64Encode,
	"b64decode":      filterB64Decode,
	"jsonpath":       filterJSONPath,
	"snakecase":      caseFilter("snakecase", toSnake),
	"kebabcase":      caseFilter("kebabcase", toKebab),
	"camelcase":      caseFilter("camelcase", toCamel),
	"pascalcase":     caseFilter("pascalcase", toPascal),
	"dateformat":     timeFilter("dateformat", "DATE_FORMAT", dateLayouts),
	"timeformat":     timeFilter("timeformat", "TIME_FORMAT", timeLayouts),
	"datetimeformat": timeFilter("datetimeformat", "DATETIME_FORMAT", datetimeLayouts),
}

func helperGlobals() map[string]interface{} {
	return map[string]interface{}{
		"now": func() float64 {
			return float64(time.Now().UTC().UnixNano()) / float64(time.Second)
		},
	}
}

func filterPluralize(e *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	p := params.Expect(0, []*exec.KwArg{{Name: "singular", Default: nil}, {Name: "plural", Default: nil}})
	if p.IsError() {
		return exec.AsValue(errors.Wrap(p, "Wrong signature for 'pluralize'"))
	}

	singular, plural := "", "s"
	if v := p.KwArgs["singular"]; !v.IsNil() {
		singular = v.String()
	}
	if v := p.KwArgs["plural"]; !v.IsNil() {
		plural = v.String()
	}

	var n float64
	switch {
	case in.IsNumber():
		n = in.Float()
	case in.IsString():
		f, err := strconv.ParseFloat(strings.TrimSpace(in.String()), 64)
		if err != nil {
			n = float64(in.Len())
		} else {
			n = f
		}
	case in.IsList() || in.IsDict():
		n = float64(in.Len())
	default:
		return exec.AsValue(errors.Errorf("pluralize: expected a number or a sized value, got %s", in.String()))
	}

	if n == 1 {
		return exec.AsValue(singular)
	}

	return exec.AsValue(plural)
}

// filterItems turns a mapping into [key, value] pairs sorted by key.
func filterItems(e *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	if p := params.ExpectNothing(); p.IsError() {
		return exec.AsValue(errors.Wrap(p, "Wrong signature for 'items'"))
	}
	if !in.IsDict() {
		return exec.AsValue(errors.Errorf("items: expected a mapping, got %s", in.String()))
	}

	m, err := toMap(in)
	if err != nil {
		return exec.AsValue(err)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]interface{}, len(keys))
	for i, k := range keys {
		out[i] = []interface{}{k, m[k]}
	}

	return exec.AsValue(out)
}

func filterB64Encode(e *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	if p := params.ExpectNothing(); p.IsError() {
		return exec.AsValue(errors.Wrap(p, "Wrong signature for 'b64encode'"))
	}

	return exec.AsValue(base64.StdEncoding.EncodeToString([]byte(in.String())))
}

func filterB64Decode(e *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	if p := params.ExpectNothing(); p.IsError() {
		return exec.AsValue(errors.Wrap(p, "Wrong signature for 'b64decode'"))
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(in.String()))
	if err != nil {
		return exec.AsValue(errors.Wrap(err, "b64decode: invalid base64 input"))
	}

	return exec.AsValue(string(decoded))
}

// filterJSONPath evaluates a JSONPath expression and returns every match.
func filterJSONPath(e *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	p := params.ExpectArgs(1)
	if p.IsError() {
		return exec.AsValue(errors.Wrap(p, "Wrong signature for 'jsonpath'"))
	}

	expr, err := jp.ParseString(p.First().String())
	if err != nil {
		return exec.AsValue(errors.Wrapf(err, "jsonpath: invalid expression '%s'", p.First().String()))
	}

	data := in.ToGoSimpleType(false)
	if err, ok := data.(error); ok {
		return exec.AsValue(err)
	}

	matches := expr.Get(coerce.Normalize(data))
	if matches == nil {
		matches = []interface{}{}
	}

	return exec.AsValue(matches)
}

func caseFilter(name string, convert func(string) string) exec.FilterFunction {
	return func(e *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
		if in.IsError() {
			return in
		}
		if p := params.ExpectNothing(); p.IsError() {
			return exec.AsValue(errors.Wrapf(p, "Wrong signature for '%s'", name))
		}

		return exec.AsValue(convert(in.String()))
	}
}

func toSnake(s string) string {
	return strings.Join(lowerAll(splitWords(s)), "_")
}

func toKebab(s string) string {
	return strings.Join(lowerAll(splitWords(s)), "-")
}

func toCamel(s string) string {
	words := splitWords(s)
	for i, w := range words {
		if i == 0 {
			words[i] = cases.Lower(language.Und).String(w)
		} else {
			words[i] = cases.Title(language.Und).String(w)
		}
	}

	return strings.Join(words, "")
}

func toPascal(s string) string {
	words := splitWords(s)
	for i, w := range words {
		words[i] = cases.Title(language.Und).String(w)
	}

	return strings.Join(words, "")
}

func lowerAll(words []string) []string {
	for i, w := range words {
		words[i] = cases.Lower(language.Und).String(w)
	}

	return words
}

// splitWords breaks s on separators and case changes: "HTTPServer_id" gives
// [HTTP Server id].
func splitWords(s string) []string {
	runes := []rune(s)
	var (
		words   []string
		current []rune
	)
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = nil
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(current) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()

	return words
}

var (
	dateLayouts = map[string]string{
		"short":  "2006-01-02",
		"medium": "Jan 2 2006",
		"long":   "January 2 2006",
		"full":   "Monday, January 2 2006",
	}
	timeLayouts = map[string]string{
		"short":  "15:04",
		"medium": "15:04:05",
		"long":   "15:04:05 MST",
		"full":   "15:04:05.000 -0700 MST",
	}
	datetimeLayouts = map[string]string{
		"short":  "2006-01-02 15:04",
		"medium": "Jan 2 2006 15:04:05",
		"long":   "January 2 2006 15:04:05 MST",
		"full":   "Monday, January 2 2006 15:04:05 -0700 MST",
	}
)

// timeFilter formats a timestamp with format= (short, medium, long, full or a
// Go layout). Without one, the global named defaultVar is used, then medium.
// tz= converts to an IANA zone before formatting.
func timeFilter(name, defaultVar string, layouts map[string]string) exec.FilterFunction {
	return func(e *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
		if in.IsError() {
			return in
		}
		p := params.Expect(0, []*exec.KwArg{{Name: "format", Default: nil}, {Name: "tz", Default: nil}})
		if p.IsError() {
			return exec.AsValue(errors.Wrapf(p, "Wrong signature for '%s'", name))
		}

		t, err := toTime(in)
		if err != nil {
			return exec.AsValue(errors.Wrap(err, name))
		}

		if tz := p.KwArgs["tz"]; !tz.IsNil() {
			loc, err := time.LoadLocation(tz.String())
			if err != nil {
				return exec.AsValue(errors.Wrapf(err, "%s: unknown timezone", name))
			}
			t = t.In(loc)
		}

		format := "medium"
		if f := p.KwArgs["format"]; !f.IsNil() {
			format = f.String()
		} else if def, ok := e.Ctx.Get(defaultVar); ok && def != nil {
			format = fmt.Sprint(def)
		}

		layout, ok := layouts[format]
		if !ok {
			layout = format
		}

		return exec.AsValue(t.Format(layout))
	}
}

func toTime(in *exec.Value) (time.Time, error) {
	if t, ok := in.Interface().(time.Time); ok {
		return t, nil
	}
	if in.IsNumber() {
		return fromUnix(in.Float()), nil
	}

	s := strings.TrimSpace(in.String())
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromUnix(f), nil
	}

	return time.Time{}, fmt.Errorf("cannot interpret '%s' as a timestamp", s)
}

func fromUnix(seconds float64) time.Time {
	whole := int64(seconds)
	nanos := int64((seconds - float64(whole)) * float64(time.Second))

	return time.Unix(whole, nanos).UTC()
}

func toMap(in *exec.Value) (map[string]interface{}, error) {
	simple := in.ToGoSimpleType(false)
	if err, ok := simple.(error); ok {
		return nil, err
	}
	m, ok := coerce.Normalize(simple).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", simple)
	}

	return m, nil
}
