// Package stagedir watches a single directory for entries an external
// process deposits into it, rather than this engine writing them itself —
// an NZB daemon renaming a completed download into place, a download agent
// dropping a finished file. Grounded on the teacher's
// internal/server/watcher.go file-watcher (fsnotify.NewWatcher, a
// background events/errors select loop), generalized from audio-file
// discovery for the music library to a generic "has this name appeared
// yet" signal any directory-polling Client can consult instead of
// re-listing the directory on every Status call.
package stagedir

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes root for entries created directly underneath it.
type Watcher struct {
	fsw *fsnotify.Watcher

	mu    sync.Mutex
	ready map[string]bool
}

// New starts watching root. root must already exist. Call Close when done.
func New(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, ready: make(map[string]bool)}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				w.mu.Lock()
				w.ready[event.Name] = true
				w.mu.Unlock()
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Ready reports whether name — an absolute path directly under root — has
// been observed appearing since the watcher started, or already existed on
// disk (covering anything deposited before the first event arrived).
func (w *Watcher) Ready(name string) bool {
	w.mu.Lock()
	seen := w.ready[name]
	w.mu.Unlock()
	if seen {
		return true
	}
	_, err := os.Stat(name)
	return err == nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
