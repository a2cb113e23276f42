// Package watcher turns filesystem events under the library roots into
// rescan kicks. Events are debounced per title directory so a burst of
// writes (a copy in progress) produces one kick after it quiets down.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultQuietPeriod is how long a directory must stay silent before its
// change is reported.
const DefaultQuietPeriod = 2 * time.Second

// Watcher monitors the movies and tv roots.
type Watcher struct {
	roots   []string
	onDirty func(dir string)
	quiet   time.Duration

	fw *fsnotify.Watcher

	mu       sync.Mutex
	debounce map[string]*time.Timer
}

// New creates a watcher over the given roots. onDirty receives the changed
// title directory after the quiet period.
func New(onDirty func(dir string), roots ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		roots:    roots,
		onDirty:  onDirty,
		quiet:    DefaultQuietPeriod,
		fw:       fw,
		debounce: make(map[string]*time.Timer),
	}, nil
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			slog.Warn("watch root failed", "root", root, "error", err)
		}
	}
	slog.Info("library watcher started", "roots", w.roots)

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return ctx.Err()
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.fw.Add(path); err != nil {
				slog.Warn("watch add failed", "path", path, "error", err)
			}
		}
		return nil
	})
}

func (w *Watcher) handle(event fsnotify.Event) {
	if ignored(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Write) {
		return
	}

	// New directories join the watch set so nested writes are seen.
	if event.Has(fsnotify.Create) {
		if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
			w.fw.Add(event.Name)
		}
	}

	dir, ok := w.titleDir(event.Name)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, exists := w.debounce[dir]; exists {
		timer.Stop()
	}
	w.debounce[dir] = time.AfterFunc(w.quiet, func() {
		w.mu.Lock()
		delete(w.debounce, dir)
		w.mu.Unlock()
		slog.Info("library change detected", "dir", dir)
		w.onDirty(dir)
	})
}

// titleDir maps an event path to the top-level title directory below one of
// the roots. Events on the roots themselves report the root.
func (w *Watcher) titleDir(path string) (string, bool) {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if rel == "." {
			return root, true
		}
		parts := strings.SplitN(rel, string(filepath.Separator), 2)
		return filepath.Join(root, parts[0]), true
	}
	return "", false
}

// ignored filters side-files the pipeline itself writes; watching them would
// turn every scan into the trigger of the next one.
func ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	switch filepath.Ext(base) {
	case ".info", ".blurhash", ".tmp", ".part":
		return true
	}
	return false
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir, timer := range w.debounce {
		timer.Stop()
		delete(w.debounce, dir)
	}
}
