// Package engine builds the gonja environment templates are rendered with:
// custom delimiters, strictness, a root-relative template loader, helper
// filters, the resolved context as globals and extension functions as
// callables.
//
// Printing a dict directly only renders its string entries faithfully; nested
// lists, dicts and numbers inside a dict come out as Go type names. Templates
// that need a whole structure write it with the tojson filter, or reach into
// it with attribute and index access.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/nikolalohinski/gonja/builtins"
	"github.com/nikolalohinski/gonja/exec"
	"github.com/spf13/afero"

	"github.com/conneroisu/etch/internal/config"
	etcherrors "github.com/conneroisu/etch/internal/errors"
	"github.com/conneroisu/etch/internal/extension"
	"github.com/conneroisu/etch/internal/logging"
)

// Options configures New.
type Options struct {
	Settings config.EngineConfig
	Root     string
	Fs       afero.Fs
	Context  map[string]interface{}

	// Loaders resolve Settings.CustomExtensions. When nil a Starlark loader
	// rooted at Root is used.
	Loaders []extension.Loader

	// Extensions are Go functions bound in addition to loaded ones.
	Extensions []extension.Function

	Logger logging.Logger
}

// Engine renders templates found under a root directory.
type Engine struct {
	env      *exec.EvalConfig
	loader   *Loader
	registry *extension.Registry
	session  *extension.Session
	logger   logging.Logger
}

// New validates the syntax, installs helpers, injects the context and binds
// extension functions.
func New(ctx context.Context, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("engine")

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	cfg, err := buildConfig(opts.Settings)
	if err != nil {
		return nil, err
	}

	env := exec.NewEvalConfig(cfg)
	env.Filters.Update(builtins.Filters)
	env.Filters.Update(helperFilters)
	env.Statements.Update(builtins.Statements)
	env.Tests.Update(builtins.Tests)
	env.Globals.Merge(builtins.Globals)
	env.Globals.Update(helperGlobals())

	loader := newLoader(fs, opts.Root, env, opts.Settings.KeepTrailingNewline)
	env.Loader = loader

	for _, key := range sortedKeys(opts.Context) {
		env.Globals.Set(key, opts.Context[key])
	}

	e := &Engine{
		env:      env,
		loader:   loader,
		registry: extension.NewRegistry(),
		session:  extension.NewSession(opts.Context),
		logger:   logger,
	}

	if err := e.loadExtensions(ctx, opts, fs); err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

func (e *Engine) loadExtensions(ctx context.Context, opts Options, fs afero.Fs) error {
	for _, fn := range opts.Extensions {
		if err := e.registry.Register(fn); err != nil {
			return err
		}
	}

	if len(opts.Settings.CustomExtensions) > 0 {
		loaders := opts.Loaders
		if loaders == nil {
			loaders = []extension.Loader{extension.NewStarlarkLoader(fs, opts.Root, e.logger)}
		}
		if err := extension.LoadAll(ctx, loaders, opts.Settings.CustomExtensions, e.registry); err != nil {
			return err
		}
	}

	for _, name := range e.registry.Names() {
		if _, clash := opts.Context[name]; clash {
			return etcherrors.NewEngineError(
				etcherrors.ErrCodeNameCollision,
				fmt.Sprintf("Extension function '%s' collides with the context key of the same name.", name),
			).WithContext("function", name)
		}
		e.env.Globals.Set(name, e.callable(name))
		e.logger.Debug(ctx, "Bound extension function", "function", name)
	}

	return nil
}

// Render renders the template at name (relative to the root) with local as
// the only non-global scope.
func (e *Engine) Render(name string, local map[string]interface{}) (string, error) {
	tpl, err := e.loader.GetTemplate(name)
	if err != nil {
		return "", etcherrors.WrapRender(err, codeOf(err), fmt.Sprintf("Failed to render template: '%s'", name))
	}

	if local == nil {
		local = map[string]interface{}{}
	}
	out, err := tpl.Execute(local)
	if err != nil {
		return "", etcherrors.NewRenderError(
			etcherrors.ErrCodeRenderFailed,
			fmt.Sprintf("Failed to render template: '%s'", name),
			err,
		).WithPath(name)
	}

	return out, nil
}

// RenderString compiles and renders source as if it were a template called
// name.
func (e *Engine) RenderString(name, source string, local map[string]interface{}) (string, error) {
	if !e.loader.keepTrailingNewline {
		source = trimTrailingNewline(source)
	}
	tpl, err := compile(name, source, e.env)
	if err != nil {
		return "", etcherrors.NewRenderError(etcherrors.ErrCodeTemplateParse, fmt.Sprintf("Failed to parse template '%s'", name), err)
	}
	if local == nil {
		local = map[string]interface{}{}
	}
	out, err := tpl.Execute(local)
	if err != nil {
		return "", etcherrors.NewRenderError(etcherrors.ErrCodeRenderFailed, fmt.Sprintf("Failed to render template: '%s'", name), err)
	}

	return out, nil
}

// Functions lists the bound extension function names.
func (e *Engine) Functions() []string {
	return e.registry.Names()
}

// Close ends the render session; extension functions can no longer read the
// context afterwards.
func (e *Engine) Close() {
	e.session.Close()
}

func codeOf(err error) string {
	if ee, ok := err.(*etcherrors.EtchError); ok {
		return ee.Code
	}

	return etcherrors.ErrCodeRenderFailed
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
