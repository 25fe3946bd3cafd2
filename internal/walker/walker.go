// Package walker discovers template files under a render root.
//
// Nothing is hidden by default: version-control ignore files, hidden files and
// global excludes are all visited. Only the ignore files named in the config
// and the exclude overrides narrow the walk.
package walker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/spf13/afero"

	etcherrors "github.com/conneroisu/etch/internal/errors"
	"github.com/conneroisu/etch/internal/lockfile"
	"github.com/conneroisu/etch/internal/logging"
)

var (
	midTag    = regexp.MustCompile(`^(.*)(\.etch\.)(.*)$`)
	suffixTag = regexp.MustCompile(`^(.*)(\.etch)$`)
)

// Template is one discovered render unit.
type Template struct {
	// RelPath is the slash separated path relative to the root. It keys both
	// the lockfile and the engine loader.
	RelPath string
	SrcPath string
	OutPath string
}

// Options configures a Walker.
type Options struct {
	Root        string
	ConfigPath  string
	Exclude     []string
	IgnoreFiles []string
	Fs          afero.Fs
	Logger      logging.Logger
}

type override struct {
	pattern   gitignore.Pattern
	whitelist bool
}

// Walker traverses a root and yields templates.
type Walker struct {
	root         string
	fs           afero.Fs
	overrides    []override
	hasWhitelist bool
	ignores      gitignore.Matcher
	logger       logging.Logger
}

// New compiles the override and ignore rules for a walk.
func New(opts Options) (*Walker, error) {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, etcherrors.NewWalkError(etcherrors.ErrCodeTraversal, "Could not make root absolute", err).WithPath(opts.Root)
	}

	w := &Walker{
		root:   root,
		fs:     fs,
		logger: logger.WithComponent("walker"),
	}

	implicit := []string{lockfile.FileName}
	if opts.ConfigPath != "" {
		if rel, ok := within(root, opts.ConfigPath); ok {
			implicit = append([]string{"/" + escapeGlob(rel)}, implicit...)
		}
	}
	for _, exclude := range implicit {
		o, err := invert(exclude)
		if err != nil {
			return nil, err.WithPath(opts.ConfigPath)
		}
		w.overrides = append(w.overrides, o)
	}

	for i, exclude := range opts.Exclude {
		o, err := invert(exclude)
		if err != nil {
			return nil, err.WithPath(fmt.Sprintf("exclude[%d]", i))
		}
		if o.whitelist {
			w.hasWhitelist = true
		}
		w.overrides = append(w.overrides, o)
	}

	var patterns []gitignore.Pattern
	for _, file := range opts.IgnoreFiles {
		ps, err := w.readIgnoreFile(file)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, ps...)
	}
	w.ignores = gitignore.NewMatcher(patterns)

	return w, nil
}

// invert turns an exclude into an override: a plain exclude becomes an ignore
// rule and a negated one becomes a whitelist rule.
func invert(exclude string) (override, *etcherrors.EtchError) {
	body := exclude
	whitelist := false
	if strings.HasPrefix(body, "!") {
		body = body[1:]
		whitelist = true
	}
	if err := validateGlob(body); err != nil {
		return override{}, etcherrors.NewWalkError(
			etcherrors.ErrCodeInvalidPattern,
			fmt.Sprintf("Invalid exclude pattern '%s'", exclude),
			err,
		).WithContext("pattern", exclude)
	}

	return override{
		pattern:   gitignore.ParsePattern(body, nil),
		whitelist: whitelist,
	}, nil
}

func validateGlob(pattern string) error {
	if strings.TrimSpace(strings.Trim(pattern, "/")) == "" {
		return fmt.Errorf("pattern matches nothing")
	}
	for _, seg := range strings.Split(pattern, "/") {
		if _, err := filepath.Match(seg, ""); err != nil {
			return err
		}
	}

	return nil
}

func (w *Walker) readIgnoreFile(path string) ([]gitignore.Pattern, *etcherrors.EtchError) {
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			w.logger.Warn(context.Background(), err, "Ignore file not found, skipping", "path", path)
			return nil, nil
		}
		return nil, etcherrors.NewWalkError(etcherrors.ErrCodeTraversal, "Could not read ignore file", err).WithPath(path)
	}

	var domain []string
	if rel, ok := within(w.root, filepath.Dir(path)); ok && rel != "." {
		domain = strings.Split(rel, "/")
	}

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := validateGlob(strings.TrimPrefix(line, "!")); err != nil {
			return nil, etcherrors.NewWalkError(
				etcherrors.ErrCodeInvalidPattern,
				fmt.Sprintf("Invalid ignore pattern '%s'", line),
				err,
			).WithPath(fmt.Sprintf("%s:%d", path, n))
		}
		patterns = append(patterns, gitignore.ParsePattern(line, domain))
	}

	return patterns, nil
}

// Ignored reports whether rel (slash separated, relative to the root) is
// filtered out. Overrides take precedence over ignore files.
func (w *Walker) Ignored(rel string, isDir bool) bool {
	parts := strings.Split(rel, "/")

	for i := len(w.overrides) - 1; i >= 0; i-- {
		o := w.overrides[i]
		if o.pattern.Match(parts, isDir) != gitignore.NoMatch {
			return !o.whitelist
		}
	}
	if w.hasWhitelist && !isDir {
		return true
	}

	return w.ignores.Match(parts, isDir)
}

// Templates walks the root in lexical order and returns every recognized
// template that survives the filters.
func (w *Walker) Templates(ctx context.Context) ([]Template, error) {
	var templates []Template

	err := afero.Walk(w.fs, w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == w.root {
			return nil
		}

		rel, ok := within(w.root, path)
		if !ok {
			return nil
		}

		if info.IsDir() {
			if w.Ignored(rel, true) {
				w.logger.Debug(ctx, "Skipping ignored directory", "path", rel)
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || w.Ignored(rel, false) {
			return nil
		}

		outName, ok := Recognize(info.Name())
		if !ok {
			return nil
		}

		templates = append(templates, Template{
			RelPath: rel,
			SrcPath: path,
			OutPath: filepath.Join(filepath.Dir(path), outName),
		})

		return nil
	})
	if err != nil {
		return nil, etcherrors.WrapWalk(err, etcherrors.ErrCodeTraversal, "Failed to walk root").WithPath(w.root)
	}

	w.logger.Debug(ctx, "Discovered templates", "count", len(templates))

	return templates, nil
}

// Recognize returns the output filename for a tagged template filename.
func Recognize(name string) (string, bool) {
	var out string
	switch {
	case midTag.MatchString(name):
		out = midTag.ReplaceAllString(name, "$1.$3")
	case suffixTag.MatchString(name):
		out = suffixTag.ReplaceAllString(name, "$1")
	default:
		return "", false
	}
	if out == "" || out == "." {
		return "", false
	}

	return out, true
}

// within returns path relative to root in slash form when path lies inside it.
func within(root, path string) (string, bool) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	return filepath.ToSlash(rel), true
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
