package preview

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/qmd/internal/logging"
)

// Watcher observes a fixed set of files for modification and fires a
// single debounced callback per burst of changes. Directories are watched
// rather than the files themselves so editors that replace files on save
// (rename + create) are still observed.
type Watcher struct {
	fsw      *fsnotify.Watcher
	delay    time.Duration
	onChange func(paths []string)
	log      logging.Logger

	mu       sync.Mutex
	watchSet map[string]bool
	pending  map[string]bool
	timer    *time.Timer
	closed   bool
}

// NewWatcher creates a watcher firing onChange at most once per debounce
// window.
func NewWatcher(delay time.Duration, onChange func(paths []string), log logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Watcher{
		fsw:      fsw,
		delay:    delay,
		onChange: onChange,
		log:      log.WithComponent("watcher"),
		watchSet: make(map[string]bool),
		pending:  make(map[string]bool),
	}, nil
}

// Add registers one file in the watch set.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.watchSet[abs] = true
	w.mu.Unlock()

	return w.fsw.Add(filepath.Dir(abs))
}

// Start runs the event loop until the context is cancelled or the watcher
// is closed.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				abs, err := filepath.Abs(event.Name)
				if err != nil {
					continue
				}
				w.mu.Lock()
				if w.watchSet[abs] && !w.closed {
					w.pending[abs] = true
					w.scheduleLocked()
				}
				w.mu.Unlock()
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.log.Warn(ctx, err, "watch error")
			}
		}
	}()
}

// scheduleLocked arms (or re-arms) the debounce timer. Must hold w.mu.
func (w *Watcher) scheduleLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	if w.closed || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	w.onChange(paths)
}

// Close releases the watch handles. Idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	return w.fsw.Close()
}
