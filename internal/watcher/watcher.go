package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/logging"
	"github.com/Iron-Ham/flixbridge/internal/protocol"
	"github.com/Iron-Ham/flixbridge/internal/session"
)

// Notifier receives the jobs the watcher produces. *bridge.Bridge satisfies it.
type Notifier interface {
	Notify(ctx context.Context, kind job.Kind, payload json.RawMessage) (string, error)
}

// Watcher follows one workspace root.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	match    *matcher
	notifier Notifier
	debounce time.Duration
	logger   *logging.Logger
	bus      *event.Bus

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a watcher for root. Nothing is watched until Start.
func New(root string, notifier Notifier, opts ...Option) (*Watcher, error) {
	if notifier == nil {
		panic("watcher: Notifier must not be nil")
	}
	cfg := newConfig(opts)
	m, err := newMatcher(cfg.include, cfg.ignore)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	return &Watcher{
		root:     abs,
		fsw:      fsw,
		match:    m,
		notifier: notifier,
		debounce: cfg.debounce,
		logger:   cfg.logger.WithComponent("watcher"),
		bus:      cfg.bus,
	}, nil
}

// Root returns the absolute workspace root.
func (w *Watcher) Root() string { return w.root }

// Start watches the root and every non-ignored directory below it.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return fmt.Errorf("watcher: stopped")
	}
	if w.started {
		return fmt.Errorf("watcher: already started")
	}
	if err := w.watchTree(w.root); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()

	w.logger.Info("watching workspace", "root", w.root)
	return nil
}

// Stop ends the watch loop and releases the fsnotify watcher. It is safe to
// call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	_ = w.fsw.Close()
}

// watchTree adds dir and its subdirectories, skipping ignored ones.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Vanished or unreadable entries are skipped.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.match.ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	timer := time.NewTimer(0)
	<-timer.C
	defer timer.Stop()

	// path -> removed
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.collect(ev, pending) {
				timer.Reset(w.debounce)
			}

		case <-timer.C:
			batch := pending
			pending = make(map[string]bool)
			for path, removed := range batch {
				w.handle(ctx, path, removed)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// collect records ev in pending and reports whether it was relevant.
func (w *Watcher) collect(ev fsnotify.Event, pending map[string]bool) bool {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || w.match.ignoredPath(rel) {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.match.ignoredDir(info.Name()) {
				return false
			}
			w.addDir(ev.Name, pending)
			return true
		}
	}

	if !w.match.matchFile(rel) {
		return false
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		pending[ev.Name] = true
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		pending[ev.Name] = false
	default:
		return false
	}
	return true
}

// addDir watches a new directory and queues the files already inside it,
// which were created before the watch existed.
func (w *Watcher) addDir(dir string, pending map[string]bool) {
	if err := w.watchTree(dir); err != nil {
		w.logger.Warn("failed to watch new directory", "dir", dir, "error", err)
	}
	files, err := walk(context.Background(), w.root, dir, w.match)
	if err != nil {
		w.logger.Debug("failed to scan new directory", "dir", dir, "error", err)
	}
	for _, path := range files {
		pending[path] = false
	}
}

// handle submits the job for one settled change.
func (w *Watcher) handle(ctx context.Context, path string, removed bool) {
	if !removed {
		if _, err := os.Stat(path); err != nil {
			removed = true
		}
	}
	add, rem, ok := job.FileKinds(path)
	if !ok {
		return
	}
	kind := add
	if removed {
		kind = rem
	}

	uri := session.FileURI(path)
	if _, err := w.notifier.Notify(ctx, kind, protocol.URIPayload(uri)); err != nil {
		w.logger.Warn("failed to submit file change", "uri", uri, "kind", string(kind), "error", err)
		return
	}
	w.logger.Debug("file change submitted", "uri", uri, "kind", string(kind))
	if w.bus != nil {
		w.bus.Publish(event.NewWorkspaceChangedEvent(uri, removed))
	}
}
