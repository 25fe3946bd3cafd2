package extension

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/conneroisu/etch/internal/coerce"
	etcherrors "github.com/conneroisu/etch/internal/errors"
	"github.com/conneroisu/etch/internal/logging"
)

const sessionLocal = "etch.session"

// StarlarkLoader loads ".star" scripts. Scripts see a predeclared "etch"
// module:
//
//	etch.register(fn, name=None)  registers fn, returns fn
//	etch.context()                returns the render context as a dict
//
// Module globals are frozen once the script has run.
type StarlarkLoader struct {
	Root   string
	Fs     afero.Fs
	Logger logging.Logger
}

// NewStarlarkLoader resolves script references against root.
func NewStarlarkLoader(fs afero.Fs, root string, logger logging.Logger) *StarlarkLoader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &StarlarkLoader{Root: root, Fs: fs, Logger: logger.WithComponent("extension")}
}

// Accepts reports whether ref names a Starlark script.
func (l *StarlarkLoader) Accepts(ref string) bool {
	return strings.EqualFold(filepath.Ext(ref), ".star")
}

// Load executes the script and registers what it passes to etch.register.
func (l *StarlarkLoader) Load(ctx context.Context, ref string, reg *Registry) error {
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.Root, ref)
	}

	src, err := afero.ReadFile(l.Fs, path)
	if err != nil {
		return etcherrors.NewEngineError(
			etcherrors.ErrCodeExtensionLoad,
			fmt.Sprintf("Could not read extension script '%s'.", path),
		).WithCause(err)
	}

	thread := &starlark.Thread{
		Name: ref,
		Print: func(_ *starlark.Thread, msg string) {
			l.Logger.Info(ctx, msg, "extension", ref)
		},
	}

	module := &starlarkstruct.Module{
		Name: "etch",
		Members: starlark.StringDict{
			"register": starlark.NewBuiltin("register", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var (
					fn   starlark.Callable
					name starlark.Value = starlark.None
				)
				if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fn", &fn, "name?", &name); err != nil {
					return nil, err
				}

				fnName := fn.Name()
				if s, ok := starlark.AsString(name); ok {
					fnName = s
				} else if name != starlark.None {
					return nil, fmt.Errorf("register: name must be a string, got %s", name.Type())
				}

				if err := reg.Register(&starlarkFunction{name: fnName, fn: fn, script: ref}); err != nil {
					return nil, err
				}
				l.Logger.Debug(ctx, "Registered extension function", "function", fnName, "extension", ref)

				return fn, nil
			}),
			"context": starlark.NewBuiltin("context", contextBuiltin),
		},
	}

	opts := &syntax.FileOptions{Set: true, While: true, TopLevelControl: true, GlobalReassign: true, Recursion: true}
	globals, err := starlark.ExecFileOptions(opts, thread, path, src, starlark.StringDict{"etch": module})
	if err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			err = fmt.Errorf("%s", evalErr.Backtrace())
		}
		return etcherrors.NewEngineError(
			etcherrors.ErrCodeExtensionLoad,
			fmt.Sprintf("Extension script '%s' failed", ref),
		).WithCause(err)
	}
	globals.Freeze()
	module.Freeze()

	return nil
}

func contextBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}

	sess, _ := thread.Local(sessionLocal).(*Session)
	ctx, err := sess.Context()
	if err != nil {
		return nil, err
	}

	return toStarlark(ctx)
}

type starlarkFunction struct {
	name   string
	fn     starlark.Callable
	script string
}

func (f *starlarkFunction) Name() string { return f.name }

// Call runs the function on a fresh thread carrying sess.
func (f *starlarkFunction) Call(sess *Session, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	thread := &starlark.Thread{Name: f.script + ":" + f.name}
	thread.SetLocal(sessionLocal, sess)

	sargs := make(starlark.Tuple, len(args))
	for i, arg := range args {
		v, err := toStarlark(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		sargs[i] = v
	}

	keys := make([]string, 0, len(kwargs))
	for key := range kwargs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	skwargs := make([]starlark.Tuple, 0, len(keys))
	for _, key := range keys {
		v, err := toStarlark(kwargs[key])
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", key, err)
		}
		skwargs = append(skwargs, starlark.Tuple{starlark.String(key), v})
	}

	result, err := starlark.Call(thread, f.fn, sargs, skwargs)
	if err != nil {
		return nil, err
	}

	return fromStarlark(result)
}

func toStarlark(value interface{}) (starlark.Value, error) {
	switch v := coerce.Normalize(value).(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case []interface{}:
		elems := make([]starlark.Value, len(v))
		for i, elem := range v {
			sv, err := toStarlark(elem)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		dict := starlark.NewDict(len(v))
		for _, key := range keys {
			sv, err := toStarlark(v[key])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(key), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("cannot pass %T to starlark", value)
	}
}

func fromStarlark(value starlark.Value) (interface{}, error) {
	switch v := value.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		i, ok := v.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s overflows int64", v.String())
		}
		return i, nil
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case *starlark.Dict:
		out := make(map[string]interface{}, v.Len())
		for _, item := range v.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("dict keys must be strings, got %s", item[0].Type())
			}
			elem, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[key] = elem
		}
		return out, nil
	case starlark.Indexable:
		out := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			elem, err := fromStarlark(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot convert starlark %s to a template value", value.Type())
	}
}
