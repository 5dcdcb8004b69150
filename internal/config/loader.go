package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/majordomo-home/majordomo/internal/gate"
)

// Loader reads a YAML config file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *ServiceConfig
	onChange []func(*ServiceConfig)
	watcher  *fsnotify.Watcher
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *ServiceConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*ServiceConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file
// changes. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					cfg, err := l.load()
					if err != nil {
						// Keep the old config.
						continue
					}
					l.mu.Lock()
					l.current = cfg
					callbacks := make([]func(*ServiceConfig), len(l.onChange))
					copy(callbacks, l.onChange)
					l.mu.Unlock()
					for _, fn := range callbacks {
						fn(cfg)
					}
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the config file.
func (l *Loader) Reload() (*ServiceConfig, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*ServiceConfig), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*ServiceConfig, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	var cfg ServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", l.path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *ServiceConfig) {
	if cfg.Bus.URL == "" {
		cfg.Bus.URL = "nats://localhost:4222"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Queue.Capacity == 0 {
		cfg.Queue.Capacity = 1000
	}
	if cfg.Queue.IdleWaitMs == 0 {
		cfg.Queue.IdleWaitMs = 1000
	}
	if cfg.Memory.MaxEvents == 0 {
		cfg.Memory.MaxEvents = 500
	}
	if cfg.Memory.RetentionHours == 0 {
		cfg.Memory.RetentionHours = 24
	}
	if cfg.Dispatch.DefaultTimeoutMs == 0 {
		cfg.Dispatch.DefaultTimeoutMs = 10000
	}
	def := gate.DefaultSubjects()
	s := &cfg.Gate.Subjects
	if s.Results == "" {
		s.Results = def.Results
	}
	if s.Verified == "" {
		s.Verified = def.Verified
	}
	if s.Rejected == "" {
		s.Rejected = def.Rejected
	}
	if s.ConversationEnded == "" {
		s.ConversationEnded = def.ConversationEnded
	}
	if s.PublishRecognized == "" {
		s.PublishRecognized = def.PublishRecognized
	}
	if s.PublishUnknown == "" {
		s.PublishUnknown = def.PublishUnknown
	}
}
