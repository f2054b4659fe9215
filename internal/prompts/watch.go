package prompts

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the prompt pack from disk whenever system.txt or
// repair.txt changes, for dev-mode iteration without a process restart.
type Watcher struct {
	dir     string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu   sync.RWMutex
	pack *Pack
}

// NewWatcher loads the pack once and starts watching dir for changes.
// Callers must call Close when done.
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	pack, err := Load(dir)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{dir: dir, logger: logger, watcher: fw, pack: pack}
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded prompt pack.
func (w *Watcher) Current() *Pack {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pack
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pack, err := Load(w.dir)
			if err != nil {
				w.logger.Warn("prompt pack reload failed", "error", err, "dir", w.dir)
				continue
			}
			w.mu.Lock()
			w.pack = pack
			w.mu.Unlock()
			w.logger.Info("prompt pack reloaded", "dir", w.dir)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("prompt pack watch error", "error", err)
		}
	}
}
