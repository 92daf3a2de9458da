package credstore

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/tether/logging"
	"github.com/sirupsen/logrus"
)

// Watcher reports changes made to a store file by other processes, for example
// a logout from a second terminal while a watch is running.
type Watcher struct {
	watcher    *fsnotify.Watcher
	file       string
	debounce   time.Duration
	lastChange time.Time
	mu         sync.Mutex
	logger     *logrus.Entry
	onChange   func()
}

// NewWatcher watches the directory containing file; the file itself may be
// replaced by rename or removed entirely. Debounce defaults to 100ms.
func NewWatcher(file string, debounce time.Duration, onChange func()) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(file)); err != nil {
		watcher.Close()
		return nil, err
	}

	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &Watcher{
		watcher:  watcher,
		file:     filepath.Clean(file),
		debounce: debounce,
		logger:   logging.NewLogger("credstore-watcher"),
		onChange: onChange,
	}, nil
}

// Start begins watching. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.handleChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// handleChange processes a change with debouncing.
func (w *Watcher) handleChange() {
	w.mu.Lock()
	elapsed := time.Since(w.lastChange)
	if elapsed < w.debounce {
		w.mu.Unlock()
		return
	}
	w.lastChange = time.Now()
	w.mu.Unlock()

	w.logger.Debugf("Credentials changed: %s", filepath.Base(w.file))
	if w.onChange != nil {
		w.onChange()
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
