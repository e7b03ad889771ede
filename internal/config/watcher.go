package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// fileVersion identifies one observed state of the config file.
type fileVersion struct {
	modTime time.Time
	size    int64
	sum     [sha256.Size]byte
}

// Watcher polls a config file and reports validated changes to a callback.
// The file is only parsed when its modification time or size moved, and the
// callback only fires when the content hash differs from the active config.
// A file that fails to load or validate is logged once per version and the
// previous config stays active.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	active  fileVersion // version current was loaded from
	seen    fileVersion // last version examined, valid or not

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onChange may be nil, in which
// case only [Watcher.Current] reflects reloads.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, v, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.active, w.seen = cfg, v, v

	go w.loop()
	return w, nil
}

// Current returns the active config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for an in-flight check, including its
// callback, to return. It must not be called from the callback. Calling Stop
// more than once is fine.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
	<-w.stopped
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.Check()
		}
	}
}

// Check examines the file once and reports whether a new config was
// activated. The background loop calls it on every tick.
func (w *Watcher) Check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seen.modTime) && info.Size() == w.seen.size
	w.mu.Unlock()
	if unchanged {
		return false
	}

	cfg, v, err := w.read()

	w.mu.Lock()
	if v.sum == w.seen.sum && err != nil {
		// Same broken content with a new timestamp; already reported.
		w.seen = v
		w.mu.Unlock()
		return false
	}
	w.seen = v
	if err != nil {
		w.mu.Unlock()
		slog.Warn("config: reload rejected, keeping previous configuration", "path", w.path, "err", err)
		return false
	}
	if v.sum == w.active.sum {
		w.active = v
		w.mu.Unlock()
		return false
	}
	old := w.current
	w.current, w.active = cfg, v
	w.mu.Unlock()

	slog.Info("config: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true
}

// read loads and validates the file. The returned version is filled in as
// far as the file could be read, also when err is not nil.
func (w *Watcher) read() (*Config, fileVersion, error) {
	var v fileVersion
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, v, err
	}
	v.modTime, v.size = info.ModTime(), info.Size()

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, v, err
	}
	v.sum = sha256.Sum256(data)

	cfg, err := LoadFromReader(bytes.NewReader(data))
	return cfg, v, err
}
