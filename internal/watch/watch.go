// Package watch implements the real-time filesystem watch producer
// side of the File-Change Event Bus. It runs one fsnotify.Watcher
// across every enabled library's root paths, debounces bursty writers
// (editors, torrent clients), and publishes durable FileWatchEvents.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"ferrex/internal/eventbus"
	"ferrex/internal/ids"
	"ferrex/internal/librarystore"
	"ferrex/internal/logging"
	"ferrex/internal/model"
)

// debounceWindow collapses the many small fsnotify events a single
// logical change produces into one published FileWatchEvent.
const debounceWindow = time.Second

var mediaExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".m4v": true,
	".wmv": true, ".flv": true, ".webm": true, ".ts": true, ".m2ts": true,
	".mpg": true, ".mpeg": true,
}

// Watcher monitors every enabled library's root paths for filesystem
// changes and publishes FileWatchEvents to Bus.
type Watcher struct {
	Libraries *librarystore.Store
	Bus       eventbus.Bus
	Logger    *slog.Logger
	// DebounceWindow overrides debounceWindow; tests shrink it so they
	// don't have to sleep a full second per assertion.
	DebounceWindow time.Duration

	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	roots    map[string]ids.LibraryId // watched directory -> owning library
	debounce map[string]*time.Timer
	stop     chan struct{}
	once     sync.Once
}

// Start opens the underlying fsnotify watcher, seeds it from every
// enabled, watch-eligible library, and begins the event loop. Call
// Stop to release the fsnotify handle.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.roots = make(map[string]ids.LibraryId)
	w.debounce = make(map[string]*time.Timer)
	w.stop = make(chan struct{})

	if err := w.Refresh(ctx); err != nil {
		w.fsw.Close()
		return err
	}

	go w.eventLoop(ctx)
	return nil
}

// Stop halts the event loop and closes the fsnotify handle.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stop)
		if w.fsw != nil {
			w.fsw.Close()
		}
	})
}

// Refresh reconciles the watched path set against every enabled
// library with WatchForChanges set. Safe to call periodically (e.g.
// after a library's roots change) or just once at startup.
func (w *Watcher) Refresh(ctx context.Context) error {
	libs, err := w.Libraries.ListEnabled(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	desired := make(map[string]ids.LibraryId)
	for _, lib := range libs {
		if !lib.WatchForChanges {
			continue
		}
		for _, root := range lib.RootPaths {
			desired[root] = lib.ID
		}
	}

	for p := range w.roots {
		if _, ok := desired[p]; !ok {
			w.fsw.Remove(p)
			delete(w.roots, p)
		}
	}

	for p, libID := range desired {
		if _, ok := w.roots[p]; ok {
			continue
		}
		if err := w.addRecursive(p, libID); err != nil {
			w.logger().Warn("watch: failed to add library root", logging.Args(
				logging.String("path", p), logging.Error(err))...)
		}
	}

	return nil
}

func (w *Watcher) addRecursive(root string, libID ids.LibraryId) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return nil
			}
			w.roots[path] = libID
		}
		return nil
	})
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger().Warn("watch: fsnotify error", logging.Args(logging.Error(err))...)
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".part") {
		return
	}

	isCreate := event.Has(fsnotify.Create)
	isRemove := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	isModify := event.Has(fsnotify.Write)
	if !isCreate && !isRemove && !isModify {
		return
	}

	if isCreate {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if libID, ok := w.resolveLibrary(filepath.Dir(event.Name)); ok {
				w.mu.Lock()
				w.fsw.Add(event.Name)
				w.roots[event.Name] = libID
				w.mu.Unlock()
			}
			return
		}
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if !mediaExtensions[ext] {
		return
	}

	libID, ok := w.resolveLibrary(filepath.Dir(event.Name))
	if !ok {
		return
	}

	eventType := model.FileChangeModified
	switch {
	case isCreate:
		eventType = model.FileChangeCreated
	case isRemove:
		eventType = model.FileChangeDeleted
	}

	w.mu.Lock()
	if timer, ok := w.debounce[event.Name]; ok {
		// A write inside the window re-arms the pending event and keeps
		// its type, so a create followed by writes still publishes Created.
		if timer.Stop() && eventType == model.FileChangeModified {
			timer.Reset(w.debounceFor())
			w.mu.Unlock()
			return
		}
	}
	path := event.Name
	w.debounce[path] = time.AfterFunc(w.debounceFor(), func() {
		w.mu.Lock()
		delete(w.debounce, path)
		w.mu.Unlock()
		w.publish(ctx, libID, path, eventType)
	})
	w.mu.Unlock()
}

func (w *Watcher) publish(ctx context.Context, libID ids.LibraryId, path string, eventType model.FileChangeEventType) {
	var size *int64
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		s := info.Size()
		size = &s
	}
	evt := model.FileWatchEvent{
		ID:         uuid.Must(uuid.NewV7()).String(),
		LibraryID:  libID,
		EventType:  eventType,
		FilePath:   path,
		FileSize:   size,
		DetectedAt: time.Now(),
	}
	if err := w.Bus.Publish(ctx, evt); err != nil {
		w.logger().Warn("watch: failed to publish file change event", logging.Args(
			logging.String("path", path), logging.Error(err))...)
	}
}

// resolveLibrary walks dir's ancestry for the nearest watched root.
func (w *Watcher) resolveLibrary(dir string) (ids.LibraryId, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir != "/" && dir != "." {
		if libID, ok := w.roots[dir]; ok {
			return libID, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ids.LibraryId{}, false
}

func (w *Watcher) debounceFor() time.Duration {
	if w.DebounceWindow > 0 {
		return w.DebounceWindow
	}
	return debounceWindow
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
