package render

import (
	"context"
	"path/filepath"
	"time"

	"github.com/conneroisu/etch/internal/logging"
	"github.com/conneroisu/etch/internal/watcher"
)

// DefaultDebounce is how long Watch waits after the last change.
const DefaultDebounce = 200 * time.Millisecond

// Reporter receives the outcome of every run Watch performs.
type Reporter func(result *Result, err error)

// Watch renders once, then re-renders whenever files under the root change
// until ctx is cancelled. Writes made by a run itself (outputs, the lockfile
// and the debug snapshot) do not trigger another run. Watch needs the OS
// filesystem, so opts.Fs is ignored.
func Watch(ctx context.Context, opts Options, debounce time.Duration, report Reporter) error {
	opts.Fs = nil
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return err
	}
	opts.Root = root

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	ignore := watcher.NewPathSet(ControlPaths(root)...)
	runOnce := func(ctx context.Context) {
		result, err := Run(ctx, opts)
		if result != nil {
			ignore.Replace(append(ControlPaths(root), result.Outputs...)...)
		} else if outputs, derr := Outputs(ctx, opts); derr == nil {
			// A failed run may already have written some outputs.
			ignore.Replace(append(ControlPaths(root), outputs...)...)
		}
		report(result, err)
	}

	runOnce(ctx)

	fw, err := watcher.NewFileWatcher(debounce, logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(ignore.Filter)
	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		logger.Info(ctx, "Change detected, re-rendering", "path", events[0].Path, "changes", len(events))
		runOnce(ctx)
		return nil
	})

	if err := fw.AddRecursive(root); err != nil {
		return err
	}
	fw.Start(ctx)
	logger.Info(ctx, "Watching for changes", "root", root)

	<-ctx.Done()

	return nil
}
