package normalize

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Dictionary whenever its file changes. The parent
// directory is watched so that editors replacing the file and outright
// deletion are both seen; a deleted or renamed file is recreated from the
// template before reloading.
type Watcher struct {
	dict     *Dictionary
	watcher  *fsnotify.Watcher
	file     string
	debounce time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	done     chan struct{}

	mu           sync.Mutex
	pendingTimer *time.Timer
	recreate     bool
	onReload     func()
}

func NewWatcher(dict *Dictionary, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create dictionary watcher: %w", err)
	}
	file, err := filepath.Abs(dict.Path())
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(file)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch dictionary dir: %w", err)
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &Watcher{
		dict:     dict,
		watcher:  fsWatcher,
		file:     file,
		debounce: debounce,
		logger:   logger.With(slog.String("component", "dictionary-watcher")),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("dictionary watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != w.file {
		return
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.trigger(true)
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		w.trigger(false)
	default:
		return
	}
	w.logger.Debug("dictionary file changed", slog.String("op", event.Op.String()))
}

func (w *Watcher) trigger(recreate bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.recreate = w.recreate || recreate
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	recreate := w.recreate
	w.recreate = false
	w.pendingTimer = nil
	hook := w.onReload
	w.mu.Unlock()

	if recreate {
		if err := EnsureDictionaryFile(w.dict.Path()); err != nil {
			w.logger.Warn("failed to recreate dictionary", slog.String("error", err.Error()))
		}
	}
	_ = w.dict.Reload()
	if hook != nil {
		hook()
	}
}

// Stop ends the watch loop and cancels any pending reload.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.done

	w.mu.Lock()
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}
