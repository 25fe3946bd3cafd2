package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(9), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestDebouncerCoalescesByPath(t *testing.T) {
	d := &Debouncer{
		delay:   time.Hour,
		events:  make(chan ChangeEvent, 1),
		output:  make(chan []ChangeEvent, 1),
		pending: make(map[string]ChangeEvent),
	}

	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "/r/b.etch"})
	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "/r/a.etch"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "/r/b.etch"})
	d.timer.Stop()
	d.flush()

	batch := <-d.output
	assert.Equal(t, []ChangeEvent{
		{Type: EventTypeCreated, Path: "/r/a.etch"},
		{Type: EventTypeModified, Path: "/r/b.etch"},
	}, batch)

	d.flush()
	assert.Empty(t, d.output, "an empty flush sends nothing")
}

func TestPathSetFilter(t *testing.T) {
	set := NewPathSet("/r/out.txt", "/r/.etch.lock")

	assert.False(t, set.Filter("/r/out.txt"))
	assert.False(t, set.Filter("/r/./.etch.lock"))
	assert.True(t, set.Filter("/r/in.etch.txt"))

	set.Replace("/r/in.etch.txt")
	assert.True(t, set.Filter("/r/out.txt"))
	assert.False(t, set.Filter("/r/in.etch.txt"))
}

func TestNoGitFilter(t *testing.T) {
	assert.False(t, NoGitFilter("/r/.git/index"))
	assert.False(t, NoGitFilter(".git/HEAD"))
	assert.True(t, NoGitFilter("/r/.github/workflows/ci.etch.yml"))
}

func TestFileWatcherDeliversBatches(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	fw, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	ignored := filepath.Join(dir, "out.txt")
	fw.AddFilter(NewPathSet(ignored).Filter)

	batches := make(chan []ChangeEvent, 4)
	fw.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		batches <- events
		return nil
	})
	require.NoError(t, fw.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fw.Start(ctx)

	require.NoError(t, os.WriteFile(ignored, []byte("x"), 0o644))
	target := filepath.Join(dir, "sub", "a.etch")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	select {
	case events := <-batches:
		var paths []string
		for _, e := range events {
			paths = append(paths, e.Path)
		}
		assert.Contains(t, paths, target)
		assert.NotContains(t, paths, ignored)
	case <-time.After(3 * time.Second):
		t.Fatal("no change batch delivered")
	}
}
