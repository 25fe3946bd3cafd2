package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/etch/internal/coerce"
	"github.com/conneroisu/etch/internal/config"
	etcherrors "github.com/conneroisu/etch/internal/errors"
	"github.com/conneroisu/etch/internal/extension"
)

const root = "/work"

func newEngine(t *testing.T, files map[string]string, ctx map[string]interface{}, mutate func(*Options)) *Engine {
	t.Helper()
	eng, err := tryEngine(t, files, ctx, mutate)
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	return eng
}

func tryEngine(t *testing.T, files map[string]string, ctx map[string]interface{}, mutate func(*Options)) (*Engine, error) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(root, 0o755))
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(root, name), []byte(content), 0o644))
	}

	opts := Options{
		Settings: config.DefaultEngine(),
		Root:     root,
		Fs:       fs,
		Context:  ctx,
	}
	if mutate != nil {
		mutate(&opts)
	}

	return New(context.Background(), opts)
}

func TestRenderFromRoot(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"hello.etch.txt":   "Hello {{ name }}!\n",
		"sub/partial.txt":  "[{{ name }}]",
		"with_include.etch": `{% include "sub/partial.txt" %}{% include "nope.txt" ignore missing %}`,
	}, map[string]interface{}{"name": "etch"}, nil)

	out, err := eng.Render("hello.etch.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello etch!\n", out)

	out, err = eng.Render("with_include.etch", nil)
	require.NoError(t, err)
	assert.Equal(t, "[etch]", out)
}

func TestTrailingNewline(t *testing.T) {
	files := map[string]string{"a.etch": "line {{ n }}\n"}
	ctx := map[string]interface{}{"n": int64(1)}

	kept := newEngine(t, files, ctx, nil)
	out, err := kept.Render("a.etch", nil)
	require.NoError(t, err)
	assert.Equal(t, "line 1\n", out)

	trimmed := newEngine(t, files, ctx, func(o *Options) { o.Settings.KeepTrailingNewline = false })
	out, err = trimmed.Render("a.etch", nil)
	require.NoError(t, err)
	assert.Equal(t, "line 1", out)
}

func TestUndefinedStrictness(t *testing.T) {
	files := map[string]string{"u.etch": "[{{ missing }}]"}

	strict := newEngine(t, files, nil, nil)
	_, err := strict.Render("u.etch", nil)
	require.Error(t, err)
	assert.True(t, etcherrors.IsType(err, etcherrors.ErrorTypeRender))
	assert.Contains(t, err.Error(), "Failed to render template: 'u.etch'")

	lenient := newEngine(t, files, nil, func(o *Options) { o.Settings.AllowUndefined = true })
	out, err := lenient.Render("u.etch", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestNoAutoescape(t *testing.T) {
	eng := newEngine(t, nil, map[string]interface{}{"html": `<b>"a" & 'b'</b>`}, nil)

	out, err := eng.RenderString("x", "{{ html }}", nil)
	require.NoError(t, err)
	assert.Equal(t, `<b>"a" & 'b'</b>`, out)
}

func TestCustomDelimiters(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"c.etch": "<% if show %><< name >><% endif %><# hidden #>{{ literal }}<% raw %><< raw >><% endraw %>",
	}, map[string]interface{}{"show": true, "name": "etch"}, func(o *Options) {
		o.Settings.BlockStart, o.Settings.BlockEnd = "<%", "%>"
		o.Settings.VariableStart, o.Settings.VariableEnd = "<<", ">>"
		o.Settings.CommentStart, o.Settings.CommentEnd = "<#", "#>"
	})

	out, err := eng.Render("c.etch", nil)
	require.NoError(t, err)
	assert.Equal(t, "etch{{ literal }}<< raw >>", out)
}

func TestInvalidSyntax(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.EngineConfig)
	}{
		{"empty block start", func(s *config.EngineConfig) { s.BlockStart = "" }},
		{"prefix of another start", func(s *config.EngineConfig) { s.BlockStart = "{" }},
		{"identical starts", func(s *config.EngineConfig) { s.CommentStart = "{{" }},
		{"whitespace", func(s *config.EngineConfig) { s.VariableEnd = " }}" }},
		{"same block and variable end", func(s *config.EngineConfig) { s.BlockEnd = "}}" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tryEngine(t, nil, nil, func(o *Options) { tt.mutate(&o.Settings) })
			require.Error(t, err)
			assert.True(t, errors.Is(err, &etcherrors.EtchError{Type: etcherrors.ErrorTypeEngine, Code: etcherrors.ErrCodeSyntaxInvalid}))
		})
	}
}

func TestTemplateNotFound(t *testing.T) {
	eng := newEngine(t, nil, nil, nil)

	_, err := eng.Render("ghost.etch", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = eng.loader.Path("../outside")
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	p, err := eng.loader.Path("/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "/work/a/b.txt", p)
}

func TestParseError(t *testing.T) {
	eng := newEngine(t, map[string]string{"bad.etch": "{% if %}"}, nil, nil)

	_, err := eng.Render("bad.etch", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &etcherrors.EtchError{Type: etcherrors.ErrorTypeRender, Code: etcherrors.ErrCodeTemplateParse}))
}

func TestHelpers(t *testing.T) {
	ctx := map[string]interface{}{
		"one":   int64(1),
		"many":  int64(3),
		"cats":  []interface{}{"tom"},
		"data":  map[string]interface{}{"b": int64(2), "a": int64(1)},
		"doc":   map[string]interface{}{"users": []interface{}{map[string]interface{}{"name": "ann"}, map[string]interface{}{"name": "bob"}}},
		"stamp": "2024-03-05T10:20:30Z",
	}
	eng := newEngine(t, nil, ctx, nil)

	tests := []struct {
		tpl      string
		expected string
	}{
		{`{{ one|pluralize }}`, ""},
		{`{{ many|pluralize }}`, "s"},
		{`{{ "1"|pluralize }}`, ""},
		{`cat{{ cats|pluralize("", "s") }}`, "cat"},
		{`{{ many|pluralize("y", "ies") }}`, "ies"},
		{`{{ one|pluralize(singular="y", plural="ies") }}`, "y"},
		{`{% for k, v in data|items %}{{ k }}={{ v }};{% endfor %}`, "a=1;b=2;"},
		{`{{ "hi"|b64encode }}`, "aGk="},
		{`{{ "aGk="|b64decode }}`, "hi"},
		{`{{ doc|jsonpath("$.users[*].name")|join(",") }}`, "ann,bob"},
		{`{{ "HTTPServer id"|snakecase }}`, "http_server_id"},
		{`{{ "myVarName"|kebabcase }}`, "my-var-name"},
		{`{{ "hello_world"|camelcase }}`, "helloWorld"},
		{`{{ "hello-world"|pascalcase }}`, "HelloWorld"},
		{`{{ 0|dateformat(format="short") }}`, "1970-01-01"},
		{`{{ stamp|datetimeformat(format="short") }}`, "2024-03-05 10:20"},
		{`{{ stamp|timeformat(format="medium") }}`, "10:20:30"},
		{`{{ "2024-03-05"|dateformat(format="2006/01/02") }}`, "2024/03/05"},
		{`{% if now() > 1000 %}ok{% endif %}`, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.tpl, func(t *testing.T) {
			out, err := eng.RenderString("helper", tt.tpl, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestNestedContextValues(t *testing.T) {
	j, err := coerce.Coerce(`{"l": [1, 2], "m": {"k": "v"}}`, coerce.JSON)
	require.NoError(t, err)
	eng := newEngine(t, nil, map[string]interface{}{"j": j}, nil)

	tests := []struct {
		tpl      string
		expected string
	}{
		{`{{ j|tojson }}`, `{"l":[1,2],"m":{"k":"v"}}`},
		{`{{ j.l }}`, "[1, 2]"},
		{`{{ j.l[1] }}`, "2"},
		{`{{ j.m }}`, "{'k': 'v'}"},
		{`{{ j.l|join("-") }}`, "1-2"},
	}

	for _, tt := range tests {
		t.Run(tt.tpl, func(t *testing.T) {
			out, err := eng.RenderString("nested", tt.tpl, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestDateFormatGlobalDefault(t *testing.T) {
	eng := newEngine(t, nil, map[string]interface{}{"DATE_FORMAT": "long"}, nil)

	out, err := eng.RenderString("d", `{{ "2024-03-05"|dateformat }}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "March 5 2024", out)
}

func TestHelperErrors(t *testing.T) {
	eng := newEngine(t, nil, map[string]interface{}{"n": int64(1)}, nil)

	for _, tpl := range []string{
		`{{ "%%%"|b64decode }}`,
		`{{ n|items }}`,
		`{{ "not a date"|dateformat }}`,
	} {
		_, err := eng.RenderString("e", tpl, nil)
		assert.Error(t, err, tpl)
	}
}

func shout() extension.Function {
	return extension.NewFunc("shout", func(_ *extension.Session, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		suffix, _ := kwargs["suffix"].(string)
		return strings.ToUpper(fmt.Sprint(args[0])) + suffix, nil
	})
}

func TestExtensionFunctions(t *testing.T) {
	greet := extension.NewFunc("greet", func(sess *extension.Session, args []interface{}, _ map[string]interface{}) (interface{}, error) {
		ctx, err := sess.Context()
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%s from %s", args[0], ctx["project"]), nil
	})
	explode := extension.NewFunc("explode", func(*extension.Session, []interface{}, map[string]interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	})
	listy := extension.NewFunc("listy", func(_ *extension.Session, args []interface{}, _ map[string]interface{}) (interface{}, error) {
		return []interface{}{args[0], int64(2)}, nil
	})

	eng, err := tryEngine(t, nil, map[string]interface{}{"project": "etch"}, func(o *Options) {
		o.Extensions = []extension.Function{shout(), greet, explode, listy}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"explode", "greet", "listy", "shout"}, eng.Functions())

	out, err := eng.RenderString("x", `{{ shout("hi", suffix="!") }} {{ greet("hello") }} {{ listy(1)|join("-") }}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "HI! hello from etch 1-2", out)

	_, err = eng.RenderString("x", `{{ explode() }}`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Extension function 'explode' failed")
	assert.Contains(t, err.Error(), "boom")

	eng.Close()
	_, err = eng.RenderString("x", `{{ greet("late") }}`, nil)
	require.Error(t, err)
}

func TestExtensionCollidesWithContext(t *testing.T) {
	_, err := tryEngine(t, nil, map[string]interface{}{"shout": "value"}, func(o *Options) {
		o.Extensions = []extension.Function{shout()}
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &etcherrors.EtchError{Type: etcherrors.ErrorTypeEngine, Code: etcherrors.ErrCodeNameCollision}))
	assert.Contains(t, err.Error(), "Extension function 'shout' collides with the context key of the same name.")
}

func TestStarlarkExtensions(t *testing.T) {
	script := `
def wrap(value, left="<", right=">"):
    return left + str(value) + right

etch.register(wrap)

def project():
    return etch.context()["project"]

etch.register(project, name="project_name")
`
	eng := newEngine(t, map[string]string{
		"ext/helpers.star": script,
		"t.etch":           `{{ wrap(project_name(), right="]", left="[") }}`,
	}, map[string]interface{}{"project": "etch"}, func(o *Options) {
		o.Settings.CustomExtensions = []string{"ext/helpers.star"}
	})

	out, err := eng.Render("t.etch", nil)
	require.NoError(t, err)
	assert.Equal(t, "[etch]", out)
}

func TestUnknownExtensionReference(t *testing.T) {
	_, err := tryEngine(t, nil, nil, func(o *Options) {
		o.Settings.CustomExtensions = []string{"helpers.py"}
	})
	require.Error(t, err)
	assert.True(t, etcherrors.IsType(err, etcherrors.ErrorTypeEngine))
}
