package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
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
		{EventType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.NotNil(t, watcher.logger)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestFileWatcherAddFilter(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(WatchedFilter(".html"))
	assert.Len(t, watcher.filters, 1)

	watcher.AddFilter(NoHiddenFilter)
	assert.Len(t, watcher.filters, 2)
}

func TestFileWatcherAddHandler(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	handlerCalled := false
	watcher.AddHandler(func(events []ChangeEvent) error {
		handlerCalled = true
		return nil
	})
	require.Len(t, watcher.handlers, 1)

	watcher.mutex.RLock()
	for _, h := range watcher.handlers {
		h([]ChangeEvent{{Type: EventTypeCreated, Path: "store/styles/index.css"}})
	}
	watcher.mutex.RUnlock()

	assert.True(t, handlerCalled)
}

func TestFileWatcherAddPath(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NoError(t, watcher.AddPath(t.TempDir()))
	assert.Error(t, watcher.AddPath("/non/existent/path"))
}

func TestAddPathRejectsTraversal(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	err = watcher.AddPath("apps/../../../etc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traversal")
}

func TestAddRecursiveSkipsHiddenAndNodeModules(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{
		"store/templates",
		"store/node_modules/pkg",
		".git/objects",
		"account/styles",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}

	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.AddRecursive(root))

	watched := watcher.watcher.WatchList()
	assert.Contains(t, watched, filepath.Join(root, "store", "templates"))
	assert.Contains(t, watched, filepath.Join(root, "account", "styles"))
	for _, path := range watched {
		assert.NotContains(t, path, "node_modules")
		assert.NotContains(t, path, ".git")
	}
}

func TestWatchableDir(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"/apps/store", true},
		{"/apps/store/templates", true},
		{"/apps/.git", false},
		{"/apps/store/node_modules", false},
		{"/apps/.cache", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, watchableDir(tc.path))
		})
	}
}

func TestFileWatcherStartStop(t *testing.T) {
	tempDir := t.TempDir()

	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.AddPath(tempDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []ChangeEvent
	watcher.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		received = append(received, events...)
		mu.Unlock()
		return nil
	})

	require.NoError(t, watcher.Start(ctx))
	time.Sleep(100 * time.Millisecond)

	testFile := filepath.Join(tempDir, "index.css")
	require.NoError(t, os.WriteFile(testFile, []byte("body{}"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range received {
			if e.Path == testFile {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, watcher.Stop())
}

func TestFiltersSuppressEvents(t *testing.T) {
	tempDir := t.TempDir()

	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(WatchedFilter(".html"))
	require.NoError(t, watcher.AddPath(tempDir))

	var mu sync.Mutex
	var received []ChangeEvent
	watcher.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		received = append(received, events...)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	time.Sleep(100 * time.Millisecond)

	ignored := filepath.Join(tempDir, "notes.txt")
	wanted := filepath.Join(tempDir, "index.js")
	require.NoError(t, os.WriteFile(ignored, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(wanted, []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range received {
			if e.Path == wanted {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, e := range received {
		assert.NotEqual(t, ignored, e.Path, "filtered extension must not reach handlers")
	}
}

func TestNewDirectoryJoinsWatchSet(t *testing.T) {
	root := t.TempDir()

	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.AddRecursive(root))

	var mu sync.Mutex
	var received []ChangeEvent
	watcher.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		received = append(received, events...)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	time.Sleep(100 * time.Millisecond)

	newDir := filepath.Join(root, "checkout")
	require.NoError(t, os.MkdirAll(newDir, 0o755))

	// Give the watcher time to attach to the new directory before writing.
	assert.Eventually(t, func() bool {
		for _, path := range watcher.watcher.WatchList() {
			if path == newDir {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	inside := filepath.Join(newDir, "checkout.css")
	require.NoError(t, os.WriteFile(inside, []byte("body{}"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range received {
			if e.Path == inside {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDebouncerCollapsesBurst(t *testing.T) {
	d := &Debouncer{
		delay:   20 * time.Millisecond,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	for i := 0; i < 5; i++ {
		d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "/apps/store/styles/index.css", Size: int64(i)})
	}
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "/apps/store/scripts/index.js"})

	select {
	case batch := <-d.output:
		require.Len(t, batch, 2, "one event per distinct path")
		bySize := make(map[string]int64)
		for _, e := range batch {
			bySize[e.Path] = e.Size
		}
		assert.Equal(t, int64(4), bySize["/apps/store/styles/index.css"], "latest event wins")
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never flushed")
	}

	d.mutex.Lock()
	assert.Empty(t, d.pending, "flush clears pending")
	d.mutex.Unlock()
}

func TestDebouncerTimerResetExtendsWindow(t *testing.T) {
	d := &Debouncer{
		delay:   60 * time.Millisecond,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	d.addEvent(ChangeEvent{Path: "/a.css"})
	time.Sleep(30 * time.Millisecond)
	d.addEvent(ChangeEvent{Path: "/b.css"})

	select {
	case batch := <-d.output:
		assert.Len(t, batch, 2, "second event within the window joins the first batch")
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never flushed")
	}
}

func TestDebouncerSustainedLoadKeepsPendingBounded(t *testing.T) {
	d := &Debouncer{
		delay:   5 * time.Millisecond,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	for cycle := 0; cycle < 50; cycle++ {
		for i := 0; i < 20; i++ {
			d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "/apps/store/styles/index.css"})
		}
		d.flush()

		// Drain so the output channel never backpressures the flush path.
		for {
			select {
			case <-d.output:
				continue
			default:
			}
			break
		}

		d.mutex.Lock()
		pending := len(d.pending)
		d.mutex.Unlock()
		assert.Zero(t, pending)
	}
	if d.timer != nil {
		d.timer.Stop()
	}
}
