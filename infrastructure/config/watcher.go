package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDelay = 200 * time.Millisecond

// Watcher reloads the YAML file when it changes and hands the new
// configuration to the registered callbacks. Only settings that are safe to
// change on a running process are expected to be applied by callbacks.
type Watcher struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	logger    *zap.Logger
	load      func() (*Config, error)

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
}

// NewWatcher starts watching initial.ConfigFile. Without a config file the
// watcher is inert.
func NewWatcher(initial *Config, logger *zap.Logger) (*Watcher, error) {
	return newWatcher(initial, logger, LoadConfig)
}

func newWatcher(initial *Config, logger *zap.Logger, load func() (*Config, error)) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		config: initial,
		logger: logger,
		load:   load,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	if initial.ConfigFile == "" {
		close(w.done)
		return w, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory: editors replace files by rename, which drops a
	// watch placed on the file itself.
	if err := fsWatcher.Add(filepath.Dir(initial.ConfigFile)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}
	w.watcher = fsWatcher
	go w.watchLoop()

	logger.Info("Configuration hot reloading enabled", zap.String("file", initial.ConfigFile))
	return w, nil
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	defer w.watcher.Close()

	target := filepath.Clean(w.Current().ConfigFile)
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	next, err := w.load()
	if err != nil {
		w.logger.Error("Invalid configuration after reload, keeping the previous one", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.config
	w.config = next
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	w.logger.Info("Configuration reloaded",
		zap.String("logLevel", next.LogLevel),
		zap.Int("rateLimitRPM", next.RateLimitRPM),
		zap.Bool("logLevelChanged", prev.LogLevel != next.LogLevel),
	)
	for _, cb := range callbacks {
		w.safeCall(cb, next)
	}
}

func (w *Watcher) safeCall(cb func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Configuration callback panicked", zap.Any("panic", r))
		}
	}()
	cb(cfg)
}

// OnChange registers a callback run after every successful reload
func (w *Watcher) OnChange(cb func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, cb)
	w.mu.Unlock()
}

// Current returns the latest configuration
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Stop stops watching and waits for the loop to exit
func (w *Watcher) Stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	<-w.done
}
