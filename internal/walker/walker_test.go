package walker

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	etcherrors "github.com/conneroisu/etch/internal/errors"
)

const root = "/repo"

func tree(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(root, 0o755))
	for _, f := range files {
		path := filepath.Join(root, f)
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(f), 0o644))
	}

	return fs
}

func relPaths(t *testing.T, opts Options) []string {
	t.Helper()
	w, err := New(opts)
	require.NoError(t, err)

	templates, err := w.Templates(context.Background())
	require.NoError(t, err)

	paths := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		paths = append(paths, tmpl.RelPath)
	}
	sort.Strings(paths)

	return paths
}

func TestRecognize(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		ok       bool
	}{
		{"config.etch.yaml", "config.yaml", true},
		{"script.sh.etch", "script.sh", true},
		{"a.etch.b.etch", "a.b.etch", true},
		{".env.etch", ".env", true},
		{"Dockerfile.etch.", "Dockerfile.", true},
		{"plain.txt", "", false},
		{"etch", "", false},
		{"file.etchx", "", false},
		{".etch", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := Recognize(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestTemplatesDescriptors(t *testing.T) {
	fs := tree(t, "config.etch.yaml", "sub/run.sh.etch", "plain.txt")

	w, err := New(Options{Root: root, Fs: fs})
	require.NoError(t, err)
	templates, err := w.Templates(context.Background())
	require.NoError(t, err)

	require.Len(t, templates, 2)
	assert.Equal(t, Template{
		RelPath: "config.etch.yaml",
		SrcPath: "/repo/config.etch.yaml",
		OutPath: "/repo/config.yaml",
	}, templates[0])
	assert.Equal(t, Template{
		RelPath: "sub/run.sh.etch",
		SrcPath: "/repo/sub/run.sh.etch",
		OutPath: "/repo/sub/run.sh",
	}, templates[1])
}

func TestNothingHiddenByDefault(t *testing.T) {
	fs := tree(t, ".hidden.etch", ".git/hooks/pre-commit.etch", "node_modules/x.etch")
	require.NoError(t, afero.WriteFile(fs, "/repo/.gitignore", []byte("node_modules\n.hidden.etch\n"), 0o644))

	assert.Equal(t,
		[]string{".git/hooks/pre-commit.etch", ".hidden.etch", "node_modules/x.etch"},
		relPaths(t, Options{Root: root, Fs: fs}),
	)
}

func TestControlFilesExcluded(t *testing.T) {
	fs := tree(t, "etch.config.toml", "etch.config.etch.toml", ".etch.lock", "a.etch")

	paths := relPaths(t, Options{
		Root:       root,
		ConfigPath: "/repo/etch.config.etch.toml",
		Fs:         fs,
	})
	assert.Equal(t, []string{"a.etch"}, paths)
}

func TestExcludes(t *testing.T) {
	fs := tree(t,
		"a.etch",
		"b.etch.txt",
		"build/out.etch",
		"docs/keep.etch",
		"docs/drop.etch",
	)

	tests := []struct {
		name     string
		exclude  []string
		expected []string
	}{
		{
			name:     "no excludes",
			expected: []string{"a.etch", "b.etch.txt", "build/out.etch", "docs/drop.etch", "docs/keep.etch"},
		},
		{
			name:     "glob",
			exclude:  []string{"*.txt"},
			expected: []string{"a.etch", "build/out.etch", "docs/drop.etch", "docs/keep.etch"},
		},
		{
			name:     "directory",
			exclude:  []string{"build/"},
			expected: []string{"a.etch", "b.etch.txt", "docs/drop.etch", "docs/keep.etch"},
		},
		{
			name:     "any negation turns the rest into a whitelist",
			exclude:  []string{"docs/*", "!docs/keep.etch"},
			expected: []string{"docs/keep.etch"},
		},
		{
			name:     "negation alone whitelists",
			exclude:  []string{"!*.txt"},
			expected: []string{"b.etch.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, relPaths(t, Options{Root: root, Exclude: tt.exclude, Fs: fs}))
		})
	}
}

func TestIgnoreFiles(t *testing.T) {
	fs := tree(t, "a.etch", "gen/x.etch", "sub/local.etch", "sub/other.etch", "local.etch")
	require.NoError(t, afero.WriteFile(fs, "/repo/.etchignore", []byte("# generated\ngen/\r\n\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/repo/sub/.etchignore", []byte("local.etch\n"), 0o644))

	paths := relPaths(t, Options{
		Root:        root,
		IgnoreFiles: []string{"/repo/.etchignore", "/repo/sub/.etchignore", "/repo/missing.ignore"},
		Fs:          fs,
	})
	assert.Equal(t, []string{"a.etch", "local.etch", "sub/other.etch"}, paths)
}

func TestOverrideBeatsIgnoreFile(t *testing.T) {
	fs := tree(t, "a.etch", "b.etch")
	require.NoError(t, afero.WriteFile(fs, "/repo/.etchignore", []byte("*.etch\n"), 0o644))

	paths := relPaths(t, Options{
		Root:        root,
		Exclude:     []string{"!a.etch"},
		IgnoreFiles: []string{"/repo/.etchignore"},
		Fs:          fs,
	})
	assert.Equal(t, []string{"a.etch"}, paths)
}

func TestInvalidPatterns(t *testing.T) {
	fs := tree(t)

	_, err := New(Options{Root: root, Exclude: []string{"[abc"}, Fs: fs})
	require.Error(t, err)
	var ee *etcherrors.EtchError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, etcherrors.ErrorTypeWalk, ee.Type)
	assert.Equal(t, etcherrors.ErrCodeInvalidPattern, ee.Code)
	assert.Equal(t, "exclude[0]", ee.Path)

	require.NoError(t, afero.WriteFile(fs, "/repo/.bad", []byte("ok\nfoo[\n"), 0o644))
	_, err = New(Options{Root: root, IgnoreFiles: []string{"/repo/.bad"}, Fs: fs})
	require.Error(t, err)
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "/repo/.bad:2", ee.Path)
}

func TestTemplatesHonoursCancellation(t *testing.T) {
	fs := tree(t, "a.etch")
	w, err := New(Options{Root: root, Fs: fs})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = w.Templates(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIgnored(t *testing.T) {
	w, err := New(Options{Root: root, Exclude: []string{"!keep/*.etch"}, Fs: tree(t)})
	require.NoError(t, err)

	assert.False(t, w.Ignored("keep", true), "directories are never dropped by an unmatched whitelist")
	assert.False(t, w.Ignored("keep/a.etch", false))
	assert.True(t, w.Ignored("other/a.etch", false))
	assert.True(t, w.Ignored(".etch.lock", false))
}
