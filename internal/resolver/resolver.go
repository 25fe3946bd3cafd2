// Package resolver builds the template context from declared static,
// environment and command sources, and runs pre-render setup commands.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/conneroisu/etch/internal/coerce"
	etcherrors "github.com/conneroisu/etch/internal/errors"
	"github.com/conneroisu/etch/internal/logging"
)

// DefaultMaxParallel bounds concurrent cli source resolution.
const DefaultMaxParallel = 8

// Resolver turns Sources into a context map.
type Resolver struct {
	dir         string
	runner      CommandRunner
	lookupEnv   func(string) (string, bool)
	maxParallel int
	logger      logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRunner replaces the shell runner.
func WithRunner(runner CommandRunner) Option {
	return func(r *Resolver) { r.runner = runner }
}

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(r *Resolver) { r.lookupEnv = lookup }
}

// WithMaxParallel bounds concurrent cli sources; values below 1 mean 1.
func WithMaxParallel(n int) Option {
	return func(r *Resolver) {
		if n < 1 {
			n = 1
		}
		r.maxParallel = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// New creates a resolver whose commands run in dir.
func New(dir string, opts ...Option) *Resolver {
	r := &Resolver{
		dir:         dir,
		runner:      NewShellRunner(),
		lookupEnv:   os.LookupEnv,
		maxParallel: DefaultMaxParallel,
		logger:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("resolver")

	return r
}

// RunSetup executes commands sequentially in declaration order. Any
// non-zero exit aborts with the offending command and exit code.
func (r *Resolver) RunSetup(ctx context.Context, commands []string) error {
	for _, command := range commands {
		if _, err := r.run(ctx, command); err != nil {
			return etcherrors.WrapContext(err, etcherrors.ErrCodeCommandFailed, "Setup command failed")
		}
	}

	return nil
}

// Resolve consumes every source. Static and environment sources resolve
// sequentially; cli sources fan out, one task per key, and are joined before
// returning.
func (r *Resolver) Resolve(ctx context.Context, sources Sources) (map[string]interface{}, error) {
	values := make(map[string]interface{}, sources.Len())

	for _, key := range sortedKeys(sources.Static) {
		value, err := r.ResolveStatic(sources.Static[key])
		if err != nil {
			return nil, wrapKey(err, KindStatic, key)
		}
		values[key] = value
	}

	for _, key := range sortedKeys(sources.Env) {
		value, err := r.ResolveEnv(key, sources.Env[key])
		if err != nil {
			return nil, wrapKey(err, KindEnv, key)
		}
		values[key] = value
	}

	cliValues, err := r.resolveCliSources(ctx, sources.Cli)
	if err != nil {
		return nil, err
	}
	for _, kv := range cliValues {
		values[kv.key] = kv.value
	}

	return values, nil
}

// ResolveStatic coerces the declared value.
func (r *Resolver) ResolveStatic(src StaticSource) (interface{}, error) {
	return coerce.Coerce(src.Value, src.Coerce)
}

// ResolveEnv looks up the variable named EnvName (or key), falling back to
// the declared default. Whichever value is used is coerced.
func (r *Resolver) ResolveEnv(key string, src EnvSource) (interface{}, error) {
	name := src.EnvName
	if name == "" {
		name = key
	}

	var value interface{}
	if found, ok := r.lookupEnv(name); ok {
		value = found
	} else if src.Default != nil {
		r.logger.Debug(context.Background(), "Environment variable missing, using default", "variable", name)
		value = src.Default
	} else {
		return nil, etcherrors.NewContextError(
			etcherrors.ErrCodeMissingEnv,
			fmt.Sprintf("Could not find environment variable '%s' and no default provided.", name),
		).WithContext("variable", name)
	}

	return coerce.Coerce(value, src.Coerce)
}

// ResolveCli runs every command; all must exit zero. The last command's
// stdout is the value and must not be blank.
func (r *Resolver) ResolveCli(ctx context.Context, src CliSource) (interface{}, error) {
	if len(src.Commands) == 0 {
		return nil, etcherrors.NewContextError(etcherrors.ErrCodeImplicitNone, "No commands declared.")
	}

	var last *CommandResult
	for _, command := range src.Commands {
		result, err := r.run(ctx, command)
		if err != nil {
			return nil, err
		}
		last = result
	}

	final := src.Commands[len(src.Commands)-1]
	if strings.TrimSpace(last.Stdout) == "" {
		return nil, etcherrors.NewContextError(
			etcherrors.ErrCodeImplicitNone,
			fmt.Sprintf("Implicit None. Final cli script returned nothing. Command '%s'.", final),
		).WithContext("command", final)
	}

	return coerce.Coerce(last.Stdout, src.Coerce)
}

type keyedValue struct {
	key   string
	value interface{}
}

func (r *Resolver) resolveCliSources(ctx context.Context, sources map[string]CliSource) ([]keyedValue, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	p := pool.NewWithResults[keyedValue]().
		WithContext(ctx).
		WithMaxGoroutines(r.maxParallel).
		WithFirstError().
		WithCancelOnError()

	for _, key := range sortedKeys(sources) {
		key, src := key, sources[key]
		p.Go(func(ctx context.Context) (keyedValue, error) {
			value, err := r.ResolveCli(ctx, src)
			if err != nil {
				return keyedValue{}, wrapKey(err, KindCli, key)
			}
			return keyedValue{key: key, value: value}, nil
		})
	}

	return p.Wait()
}

func (r *Resolver) run(ctx context.Context, command string) (*CommandResult, error) {
	r.logger.Info(ctx, "Running command", "command", command)

	result, err := r.runner.Run(ctx, r.dir, command)
	if err != nil {
		return nil, etcherrors.WrapContext(err, etcherrors.ErrCodeCommandFailed, fmt.Sprintf("Command '%s' could not be run", command))
	}
	if result.ExitCode != 0 {
		return nil, etcherrors.NewContextError(
			etcherrors.ErrCodeCommandFailed,
			fmt.Sprintf("Command '%s' returned non zero exit code: %d", command, result.ExitCode),
		).WithContext("command", command).WithContext("exit_code", result.ExitCode)
	}

	return result, nil
}

func wrapKey(err error, kind Kind, key string) error {
	code := etcherrors.ErrCodeCommandFailed
	var ee *etcherrors.EtchError
	if errors.As(err, &ee) {
		code = ee.Code
	}

	return etcherrors.WrapContext(err, code, fmt.Sprintf("Failed to resolve %s context value '%s'", kind, key))
}
