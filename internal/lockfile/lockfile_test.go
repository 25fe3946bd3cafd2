package lockfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	etcherrors "github.com/conneroisu/etch/internal/errors"
	"github.com/conneroisu/etch/internal/logging"
)

const (
	root  = "/proj"
	stamp = "v1.0.0"
)

func newFs(t *testing.T, manifest *Manifest) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(root, 0o755))
	if manifest != nil {
		data, err := json.Marshal(manifest)
		require.NoError(t, err)
		require.NoError(t, afero.WriteFile(fs, filepath.Join(root, FileName), data, 0o644))
	}

	return fs
}

func load(fs afero.Fs, force bool) *Lockfile {
	return Load(context.Background(), Options{Root: root, Force: force, Version: stamp, Fs: fs})
}

func readManifest(t *testing.T, fs afero.Fs) Manifest {
	t.Helper()
	data, err := afero.ReadFile(fs, filepath.Join(root, FileName))
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))

	return m
}

func TestLoadResets(t *testing.T) {
	tests := []struct {
		name  string
		setup func(afero.Fs)
		force bool
	}{
		{"missing", func(afero.Fs) {}, false},
		{"corrupt", func(fs afero.Fs) {
			_ = afero.WriteFile(fs, filepath.Join(root, FileName), []byte("{not json"), 0o644)
		}, false},
		{"version mismatch", func(fs afero.Fs) {
			_ = afero.WriteFile(fs, filepath.Join(root, FileName), []byte(`{"version":"v0.9.0","files":{"a":"1"}}`), 0o644)
		}, false},
		{"force", func(fs afero.Fs) {
			_ = afero.WriteFile(fs, filepath.Join(root, FileName), []byte(`{"version":"v1.0.0","files":{"a":"1"}}`), 0o644)
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFs(t, nil)
			tt.setup(fs)

			l := load(fs, tt.force)
			assert.True(t, l.Modified())
			assert.Empty(t, l.Files())
		})
	}
}

func TestLoadKeepsMatchingManifest(t *testing.T) {
	fs := newFs(t, &Manifest{Version: stamp, Files: map[string]string{"a.etch": Hash("A")}})

	l := load(fs, false)
	assert.False(t, l.Modified())
	assert.Equal(t, map[string]string{"a.etch": Hash("A")}, l.Files())
}

func TestAddWritesOnlyChangedContent(t *testing.T) {
	ctx := context.Background()
	fs := newFs(t, &Manifest{Version: stamp, Files: map[string]string{
		"same.etch":    Hash("same"),
		"changed.etch": Hash("old"),
	}})
	l := load(fs, false)

	written, err := l.Add(ctx, "same.etch", "/proj/same", "same")
	require.NoError(t, err)
	assert.False(t, written)
	exists, _ := afero.Exists(fs, "/proj/same")
	assert.False(t, exists, "identical output must not be written")
	assert.False(t, l.Modified())

	written, err = l.Add(ctx, "changed.etch", "/proj/changed", "new")
	require.NoError(t, err)
	assert.True(t, written)
	assert.True(t, l.Modified())

	data, err := afero.ReadFile(fs, "/proj/changed")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.Equal(t, Hash("new"), l.Files()["changed.etch"])
}

func TestSyncPrunesUnseen(t *testing.T) {
	ctx := context.Background()
	fs := newFs(t, &Manifest{Version: stamp, Files: map[string]string{
		"old.txt":   Hash("gone"),
		"keep.etch": Hash("keep"),
	}})
	l := load(fs, false)

	_, err := l.Add(ctx, "keep.etch", "/proj/keep", "keep")
	require.NoError(t, err)
	assert.False(t, l.Modified())

	require.NoError(t, l.Sync(ctx))
	assert.True(t, l.Modified())

	m := readManifest(t, fs)
	assert.Equal(t, stamp, m.Version)
	assert.Equal(t, map[string]string{"keep.etch": Hash("keep")}, m.Files)
}

func TestSyncLeavesUnmodifiedFileAlone(t *testing.T) {
	ctx := context.Background()
	fs := newFs(t, &Manifest{Version: stamp, Files: map[string]string{"a.etch": Hash("A")}})
	lockPath := filepath.Join(root, FileName)
	before, err := afero.ReadFile(fs, lockPath)
	require.NoError(t, err)

	l := load(fs, false)
	_, err = l.Add(ctx, "a.etch", "/proj/a", "A")
	require.NoError(t, err)
	require.NoError(t, l.Sync(ctx))

	after, err := afero.ReadFile(fs, lockPath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "lockfile must not be rewritten")
}

func TestSyncWritesPrettyJSON(t *testing.T) {
	ctx := context.Background()
	fs := newFs(t, nil)
	l := load(fs, false)

	_, err := l.Add(ctx, "a.etch", "/proj/a", "A")
	require.NoError(t, err)
	require.NoError(t, l.Sync(ctx))

	data, err := afero.ReadFile(fs, filepath.Join(root, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"files\": {\n")

	_, err = l.Add(ctx, "b.etch", "/proj/b", "B")
	assert.True(t, etcherrors.IsType(err, etcherrors.ErrorTypeLockfile))
}

func TestAddWriteFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(newFs(t, nil))
	l := load(fs, false)

	_, err := l.Add(context.Background(), "a.etch", "/proj/a", "A")
	require.Error(t, err)

	var ee *etcherrors.EtchError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, etcherrors.ErrCodeOutputWrite, ee.Code)
	assert.Equal(t, "a.etch", ee.Path)
}

func TestHashIsStable(t *testing.T) {
	assert.Equal(t, Hash("hello"), Hash("hello"))
	assert.NotEqual(t, Hash("hello"), Hash("hello\n"))
	assert.Equal(t, "14695981039346656037", Hash(""))
}

func TestLoadLogsOnlyUnexpectedResetsAsWarnings(t *testing.T) {
	tests := []struct {
		name  string
		setup func(afero.Fs)
		force bool
		warn  bool
	}{
		{"missing", func(afero.Fs) {}, false, false},
		{"force", func(afero.Fs) {}, true, false},
		{"corrupt", func(fs afero.Fs) {
			_ = afero.WriteFile(fs, filepath.Join(root, FileName), []byte("{not json"), 0o644)
		}, false, true},
		{"version mismatch", func(fs afero.Fs) {
			_ = afero.WriteFile(fs, filepath.Join(root, FileName), []byte(`{"version":"v0.9.0","files":{}}`), 0o644)
		}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFs(t, nil)
			tt.setup(fs)

			var buf bytes.Buffer
			logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelWarn, Output: &buf})
			l := Load(context.Background(), Options{Root: root, Force: tt.force, Version: stamp, Fs: fs, Logger: logger})

			assert.True(t, l.Modified())
			if tt.warn {
				assert.Contains(t, buf.String(), "Starting lockfile afresh")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}
