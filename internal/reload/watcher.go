// Package reload watches the bind table and script and rebuilds the binds
// when either changes.
package reload

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/huglovefan/cfgfs/internal/logging"
)

// Event types.
const (
	EventModify = "modify"
	EventDelete = "delete"
)

// Event is a change to a watched file.
type Event struct {
	Type string
	Path string
	Time time.Time
}

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 150 * time.Millisecond

// Watcher reports changes to a fixed set of files. It watches their parent
// directories so files replaced by rename are still seen.
type Watcher struct {
	files    map[string]bool
	debounce time.Duration

	fsw *fsnotify.Watcher

	mu   sync.Mutex
	subs map[chan Event]struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for files.
func New(files []string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		files:    make(map[string]bool),
		debounce: debounce,
		fsw:      fsw,
		subs:     make(map[chan Event]struct{}),
		done:     make(chan struct{}),
	}
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Start begins delivering events.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.watchLoop(ctx)
}

// Stop stops the watcher and closes subscriber channels.
func (w *Watcher) Stop() {
	close(w.done)
	w.wg.Wait()
	w.fsw.Close()

	w.mu.Lock()
	for ch := range w.subs {
		close(ch)
	}
	w.subs = map[chan Event]struct{}{}
	w.mu.Unlock()
}

// Subscribe returns a channel that receives events.
func (w *Watcher) Subscribe() chan Event {
	ch := make(chan Event, 16)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch chan Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.subs[ch]; ok {
		delete(w.subs, ch)
		close(ch)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	pending := make(map[string]string)
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			path, typ, ok := w.classify(ev)
			if !ok {
				continue
			}
			pending[path] = typ
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn("watch error", logging.Err(err))
		case <-timer.C:
			for path, typ := range pending {
				w.broadcast(Event{Type: typ, Path: path, Time: time.Now()})
			}
			pending = make(map[string]string)
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) classify(ev fsnotify.Event) (string, string, bool) {
	abs, err := filepath.Abs(ev.Name)
	if err != nil || !w.files[abs] {
		return "", "", false
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return abs, EventDelete, true
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
		return abs, EventModify, true
	}
	return "", "", false
}

func (w *Watcher) broadcast(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- ev:
		default:
			logging.Warn("dropping reload event for slow subscriber", logging.String("path", ev.Path))
		}
	}
}
