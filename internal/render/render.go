// Package render runs a full etch pass over a root directory: setup
// commands, context resolution, template discovery, rendering and the
// lockfile update.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/etch/internal/config"
	"github.com/conneroisu/etch/internal/engine"
	etcherrors "github.com/conneroisu/etch/internal/errors"
	"github.com/conneroisu/etch/internal/extension"
	"github.com/conneroisu/etch/internal/lockfile"
	"github.com/conneroisu/etch/internal/logging"
	"github.com/conneroisu/etch/internal/resolver"
	"github.com/conneroisu/etch/internal/walker"
)

// DebugFileName is written at the root when Options.Debug is set.
const DebugFileName = "etcher_debug.json"

// Options configures one run.
type Options struct {
	Root string

	// ConfigPath is resolved against Root when relative. Empty means
	// config.DefaultPath.
	ConfigPath string

	// Force discards the lockfile so every template is rewritten.
	Force bool

	// Debug writes a JSON snapshot of the run to DebugFileName.
	Debug bool

	Fs         afero.Fs
	Runner     resolver.CommandRunner
	LookupEnv  func(string) (string, bool)
	Extensions []extension.Function

	// LockfileVersion overrides the version stamped into the lockfile.
	LockfileVersion string

	Logger logging.Logger
}

// Result describes a successful run.
type Result struct {
	Config *config.Config

	// Context holds the resolved value of every context key.
	Context map[string]interface{}

	// Written holds output paths whose content changed.
	Written []string

	// Identical holds template paths, relative to the root, that rendered
	// the same content as last time.
	Identical []string

	LockfileModified bool

	// Outputs lists every output path of the run, written or not.
	Outputs []string
	Elapsed time.Duration
}

// Summary is the one line report printed after a run.
func (r *Result) Summary() string {
	state := "unchanged"
	if r.LockfileModified {
		state = "modified"
	}

	return fmt.Sprintf("%d template(s) written, %d identical. Lockfile %s. %s elapsed.",
		len(r.Written), len(r.Identical), state, r.Elapsed.Round(time.Millisecond))
}

// stage times fn at debug level and prefixes its failure with label.
func stage(ctx context.Context, logger logging.Logger, name, label string, fn func() error) error {
	op := logging.StartOperation(logger, name)
	if err := fn(); err != nil {
		op.EndWithError(ctx, err)
		return etcherrors.Prefix(err, label)
	}
	op.End(ctx)

	return nil
}

// Run executes every stage in order. Any stage failure aborts the run; the
// lockfile is only persisted once every template rendered.
func Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("render")

	root, err := validateRoot(fs, opts.Root)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	err = stage(ctx, logger, "Config loading", "Failed to load config", func() (err error) {
		cfg, err = config.Load(fs, root, opts.ConfigPath)
		return err
	})
	if err != nil {
		return nil, err
	}

	resolverOpts := []resolver.Option{resolver.WithLogger(logger)}
	if opts.Runner != nil {
		resolverOpts = append(resolverOpts, resolver.WithRunner(opts.Runner))
	}
	if opts.LookupEnv != nil {
		resolverOpts = append(resolverOpts, resolver.WithLookupEnv(opts.LookupEnv))
	}
	res := resolver.New(root, resolverOpts...)

	err = stage(ctx, logger, "Setup commands", "Failed to run setup commands", func() error {
		return res.RunSetup(ctx, cfg.SetupCommands)
	})
	if err != nil {
		return nil, err
	}

	var values map[string]interface{}
	err = stage(ctx, logger, "Context resolution", "Failed to resolve context", func() (err error) {
		values, err = res.Resolve(ctx, cfg.Context)
		return err
	})
	if err != nil {
		return nil, err
	}

	var templates []walker.Template
	err = stage(ctx, logger, "Template discovery", "Failed to discover templates", func() (err error) {
		templates, err = discover(ctx, fs, root, cfg, logger)
		return err
	})
	if err != nil {
		return nil, err
	}

	op := logging.StartOperation(logger, "Lockfile preparation")
	lock := lockfile.Load(ctx, lockfile.Options{
		Root:    root,
		Force:   opts.Force,
		Version: opts.LockfileVersion,
		Fs:      fs,
		Logger:  logger,
	})
	op.End(ctx)

	var eng *engine.Engine
	err = stage(ctx, logger, "Engine construction", "Failed to build template engine", func() (err error) {
		eng, err = engine.New(ctx, engine.Options{
			Settings:   cfg.Engine,
			Root:       root,
			Fs:         fs,
			Context:    values,
			Extensions: opts.Extensions,
			Logger:     logger,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	result := &Result{
		Config:    cfg,
		Context:   values,
		Written:   []string{},
		Identical: []string{},
	}

	err = stage(ctx, logger, "Rendering", "Failed to render templates", func() error {
		for _, tmpl := range templates {
			if err := ctx.Err(); err != nil {
				return err
			}

			rendered, err := eng.Render(tmpl.RelPath, nil)
			if err != nil {
				return err
			}

			written, err := lock.Add(ctx, tmpl.RelPath, tmpl.OutPath, rendered)
			if err != nil {
				return err
			}
			if written {
				result.Written = append(result.Written, tmpl.OutPath)
			} else {
				result.Identical = append(result.Identical, tmpl.RelPath)
			}
			result.Outputs = append(result.Outputs, tmpl.OutPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = stage(ctx, logger, "Lockfile sync", "Failed to sync lockfile", func() error {
		return lock.Sync(ctx)
	})
	if err != nil {
		return nil, err
	}
	result.LockfileModified = lock.Modified()

	if opts.Debug {
		if err := writeDebug(fs, root, result, lock.Files()); err != nil {
			return nil, etcherrors.Prefix(err, "Failed to write debug snapshot")
		}
	}

	result.Elapsed = time.Since(start)
	logger.Debug(ctx, "Run complete",
		"written", len(result.Written),
		"identical", len(result.Identical),
		"lockfile", lock.Path(),
		"lockfile_modified", result.LockfileModified,
	)

	return result, nil
}

// Outputs lists the output path of every template a run over opts would
// render, without resolving context or rendering anything.
func Outputs(ctx context.Context, opts Options) ([]string, error) {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	root, err := validateRoot(fs, opts.Root)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(fs, root, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	templates, err := discover(ctx, fs, root, cfg, logger)
	if err != nil {
		return nil, err
	}

	outputs := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		outputs = append(outputs, tmpl.OutPath)
	}

	return outputs, nil
}

func discover(ctx context.Context, fs afero.Fs, root string, cfg *config.Config, logger logging.Logger) ([]walker.Template, error) {
	w, err := walker.New(walker.Options{
		Root:        root,
		ConfigPath:  cfg.Path,
		Exclude:     cfg.Exclude,
		IgnoreFiles: cfg.IgnoreFiles,
		Fs:          fs,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return w.Templates(ctx)
}

func validateRoot(fs afero.Fs, root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", etcherrors.NewValidationError(etcherrors.ErrCodeRootMissing, fmt.Sprintf("Root path does not exist: %s", root)).
			WithCause(err)
	}

	info, err := fs.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", etcherrors.NewValidationError(etcherrors.ErrCodeRootMissing, fmt.Sprintf("Root path does not exist: %s", abs))
		}
		return "", etcherrors.NewValidationError(etcherrors.ErrCodeRootMissing, fmt.Sprintf("Root path could not be read: %s", abs)).
			WithCause(err)
	}
	if !info.IsDir() {
		return "", etcherrors.NewValidationError(etcherrors.ErrCodeRootNotDir, fmt.Sprintf("Root path is not a directory: %s", abs))
	}

	return abs, nil
}

// ControlPaths are files a run writes besides template outputs.
func ControlPaths(root string) []string {
	return []string{
		filepath.Join(root, lockfile.FileName),
		filepath.Join(root, DebugFileName),
	}
}
