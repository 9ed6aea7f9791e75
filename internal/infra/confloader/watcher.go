package confloader

import (
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// defaultDebounce collapses the burst of events editors emit on save.
const defaultDebounce = 200 * time.Millisecond

// Watcher calls back when a watched configuration file changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   logger.Logger
	debounce time.Duration

	mu        sync.RWMutex
	files     map[string]struct{}
	callbacks []func(string)

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets the quiet period before callbacks fire.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher creates a watcher. Call Start or StartAsync to process events.
func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		logger:   logger.Default(),
		debounce: defaultDebounce,
		files:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch adds path. Its directory is watched so that editors replacing the
// file by rename are still noticed; events for other files are ignored.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	w.mu.Lock()
	w.files[abs] = struct{}{}
	w.mu.Unlock()
	w.logger.Debug("watching config file", "path", abs)
	return nil
}

// OnChange registers a callback receiving the changed file's path.
func (w *Watcher) OnChange(cb func(string)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, cb)
	w.mu.Unlock()
}

// Start processes events until Stop is called.
func (w *Watcher) Start() {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending string
	)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !w.isWatched(ev.Name) {
				continue
			}
			pending = ev.Name
			if w.debounce <= 0 {
				w.notify(pending)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.notify(pending)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// StartAsync runs Start in a goroutine.
func (w *Watcher) StartAsync() {
	go w.Start()
}

// Stop ends event processing and releases the watcher. Safe to call twice.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) isWatched(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	w.mu.RLock()
	_, ok := w.files[abs]
	w.mu.RUnlock()
	return ok
}

func (w *Watcher) notify(path string) {
	w.logger.Info("config file changed", "path", path)
	w.mu.RLock()
	cbs := slices.Clone(w.callbacks)
	w.mu.RUnlock()
	for _, cb := range cbs {
		cb(path)
	}
}
