// Package lockfile persists the content hash of every rendered template so a
// rerun only touches outputs whose rendered text changed.
//
// A Lockfile moves through three phases: Load, then one Add per rendered
// template, then a terminal Sync.
package lockfile

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/afero"

	etcherrors "github.com/conneroisu/etch/internal/errors"
	"github.com/conneroisu/etch/internal/logging"
	"github.com/conneroisu/etch/internal/version"
)

// FileName is the lockfile's name inside the render root.
const FileName = ".etch.lock"

// Manifest is the on-disk layout.
type Manifest struct {
	Version string            `json:"version"`
	Files   map[string]string `json:"files"`
}

// Options configures Load.
type Options struct {
	Root    string
	Force   bool
	Version string
	Fs      afero.Fs
	Logger  logging.Logger
}

// Lockfile tracks one run's manifest. It is owned by a single goroutine.
type Lockfile struct {
	path     string
	fs       afero.Fs
	logger   logging.Logger
	manifest Manifest
	seen     map[string]struct{}
	modified bool
	synced   bool
}

// Load reads <root>/.etch.lock. Any problem reading it starts a fresh
// manifest and marks the run modified; it is never an error.
func Load(ctx context.Context, opts Options) *Lockfile {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	stamp := opts.Version
	if stamp == "" {
		stamp = version.LockfileStamp()
	}

	l := &Lockfile{
		path:   filepath.Join(opts.Root, FileName),
		fs:     fs,
		logger: logger.WithComponent("lockfile"),
		seen:   make(map[string]struct{}),
	}

	fresh := func(reason string, err error) *Lockfile {
		if err == nil && (reason == "force" || reason == "missing") {
			l.logger.Debug(ctx, "Starting lockfile afresh", "reason", reason, "path", l.path)
		} else {
			l.logger.Warn(ctx, err, "Starting lockfile afresh", "reason", reason, "path", l.path)
		}
		l.manifest = Manifest{Version: stamp, Files: map[string]string{}}
		l.modified = true
		return l
	}

	if opts.Force {
		return fresh("force", nil)
	}

	data, err := afero.ReadFile(fs, l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fresh("missing", nil)
		}
		return fresh("unreadable", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fresh("corrupt", err)
	}
	if m.Version != stamp {
		return fresh(fmt.Sprintf("version mismatch: lockfile %q, running %q", m.Version, stamp), nil)
	}
	if m.Files == nil {
		m.Files = map[string]string{}
	}
	l.manifest = m

	return l
}

// Hash returns the change-detection hash of rendered content.
func Hash(content string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(content))

	return strconv.FormatUint(h.Sum64(), 10)
}

// Add records relPath as seen and writes rendered to outPath when its hash
// differs from the stored one. It reports whether the output was written.
func (l *Lockfile) Add(ctx context.Context, relPath, outPath, rendered string) (bool, error) {
	if l.synced {
		return false, etcherrors.NewLockfileError(etcherrors.ErrCodeLockfileWrite, "Lockfile already synced", nil)
	}
	l.seen[relPath] = struct{}{}

	sum := Hash(rendered)
	if prev, ok := l.manifest.Files[relPath]; ok && prev == sum {
		l.logger.Debug(ctx, "Identical, skipping write", "template", relPath)
		return false, nil
	}

	if err := afero.WriteFile(l.fs, outPath, []byte(rendered), 0o644); err != nil {
		return false, etcherrors.NewLockfileError(
			etcherrors.ErrCodeOutputWrite,
			fmt.Sprintf("Failed to write rendered template to '%s'", outPath),
			err,
		).WithPath(relPath)
	}
	l.manifest.Files[relPath] = sum
	l.modified = true
	l.logger.Debug(ctx, "Wrote template", "template", relPath, "out", outPath)

	return true, nil
}

// Sync drops entries not seen during this run and persists the manifest when
// anything changed. An unmodified lockfile is left untouched on disk.
func (l *Lockfile) Sync(ctx context.Context) error {
	if l.synced {
		return nil
	}
	l.synced = true

	var pruned []string
	for rel := range l.manifest.Files {
		if _, ok := l.seen[rel]; !ok {
			pruned = append(pruned, rel)
		}
	}
	sort.Strings(pruned)
	for _, rel := range pruned {
		delete(l.manifest.Files, rel)
	}
	if len(pruned) > 0 {
		l.modified = true
		l.logger.Debug(ctx, "Pruned stale lockfile entries", "paths", pruned)
	}

	if !l.modified {
		return nil
	}

	data, err := json.MarshalIndent(l.manifest, "", "  ")
	if err != nil {
		return etcherrors.NewLockfileError(etcherrors.ErrCodeLockfileWrite, "Failed to encode lockfile", err)
	}
	if err := afero.WriteFile(l.fs, l.path, append(data, '\n'), 0o644); err != nil {
		return etcherrors.NewLockfileError(etcherrors.ErrCodeLockfileWrite, "Failed to write lockfile", err).WithPath(l.path)
	}

	return nil
}

// Modified reports whether the manifest differs from what was loaded.
func (l *Lockfile) Modified() bool {
	return l.modified
}

// Files returns a copy of the current manifest entries.
func (l *Lockfile) Files() map[string]string {
	files := make(map[string]string, len(l.manifest.Files))
	for k, v := range l.manifest.Files {
		files[k] = v
	}

	return files
}

// Path returns the lockfile location.
func (l *Lockfile) Path() string {
	return l.path
}
