package tlsroots

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// Watcher serves a certificate pair and reloads it when either file is
// written or replaced. A failed reload keeps the previous certificate.
type Watcher struct {
	certFile string
	keyFile  string

	mu   sync.RWMutex
	cert *tls.Certificate

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	logger   logger.Logger

	// Rapid successive events trigger a single reload.
	debounce   time.Duration
	settle     time.Duration
	reloadMu   sync.Mutex
	lastReload time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets the minimum interval between reloads.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher loads the pair and prepares the file watch. Call Start or
// StartAsync to begin reloading.
func NewWatcher(certFile, keyFile string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		certFile: certFile,
		keyFile:  keyFile,
		done:     make(chan struct{}),
		logger:   logger.Default(),
		debounce: 500 * time.Millisecond,
		settle:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	// Directories, so editors that rename over the file are seen.
	for _, dir := range uniqueDirs(certFile, keyFile) {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}
	w.watcher = fw
	return w, nil
}

// Start processes file events until Stop is called.
func (w *Watcher) Start() error {
	w.logger.Info("certificate watcher started", "cert_file", w.certFile, "key_file", w.keyFile)

	certBase := filepath.Base(w.certFile)
	keyBase := filepath.Base(w.keyFile)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if base := filepath.Base(event.Name); base != certBase && base != keyBase {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.logger.Debug("certificate file changed", "file", event.Name, "op", event.Op.String())
			if err := w.debouncedReload(); err != nil {
				w.logger.Error("certificate reload failed", "error", err, "cert_file", w.certFile)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("certificate watcher error", "error", err)

		case <-w.done:
			return nil
		}
	}
}

// StartAsync runs Start in a goroutine.
func (w *Watcher) StartAsync() {
	go func() {
		if err := w.Start(); err != nil {
			w.logger.Error("certificate watcher stopped with error", "error", err)
		}
	}()
}

// Stop ends the watch. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

// GetCertificate implements tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cert, nil
}

// ServerConfig returns a server TLS config that always presents the
// current certificate.
func (w *Watcher) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: w.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

func (w *Watcher) debouncedReload() error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	now := time.Now()
	if now.Sub(w.lastReload) < w.debounce {
		return nil
	}
	w.lastReload = now

	// Let the writer finish both files.
	time.Sleep(w.settle)
	if err := w.reload(); err != nil {
		// The next event retries, e.g. the key landing after the cert.
		w.lastReload = time.Time{}
		return err
	}
	return nil
}

func (w *Watcher) reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}

	w.mu.Lock()
	w.cert = &cert
	w.mu.Unlock()

	w.logger.Info("certificate loaded", "cert_file", w.certFile)
	return nil
}

func uniqueDirs(files ...string) []string {
	var dirs []string
	seen := map[string]bool{}
	for _, f := range files {
		d := filepath.Dir(f)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}
