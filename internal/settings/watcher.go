package settings

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Event describes an external change to a settings file.
type Event struct {
	// Path is the changed file.
	Path string

	// Plugin is the owning plugin name, derived from the file name.
	Plugin string

	// Op is the raw filesystem operation.
	Op fsnotify.Op
}

// Handler is called for each external settings change.
type Handler func(Event)

// Watcher observes the settings root for edits made outside the
// process. The store's reload-before-write discipline already
// tolerates such edits; the watcher makes them visible to the
// operator and to interested callers.
type Watcher struct {
	fw  *fsnotify.Watcher
	log *zap.Logger

	mu       sync.Mutex
	handlers []Handler

	done chan struct{}
	wg   sync.WaitGroup
}

// Watch starts watching the settings root directory.
func Watch(root string, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(root); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		fw:   fw,
		log:  log,
		done: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Subscribe adds a change handler.
func (w *Watcher) Subscribe(h Handler) {
	if h == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".json" {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.emit(Event{
				Path:   ev.Name,
				Plugin: strings.TrimSuffix(filepath.Base(ev.Name), ".json"),
				Op:     ev.Op,
			})
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("settings watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) emit(ev Event) {
	w.log.Info("settings file changed externally",
		zap.String("plugin", ev.Plugin),
		zap.String("path", ev.Path),
		zap.String("op", ev.Op.String()))

	w.mu.Lock()
	handlers := append([]Handler(nil), w.handlers...)
	w.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
