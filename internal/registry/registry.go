// Package registry resolves module names to network addresses and their
// declared action catalogs. The catalog lives in a YAML file maintained
// alongside the service config and is hot-watched for changes.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ModuleEntry describes one registered module.
type ModuleEntry struct {
	Address string   `yaml:"address"`
	Actions []string `yaml:"actions"`
}

type catalogFile struct {
	Modules map[string]ModuleEntry `yaml:"modules"`
}

// Registry is a read-mostly view over the module catalog file.
type Registry struct {
	path     string
	mu       sync.RWMutex
	modules  map[string]ModuleEntry
	onChange []func()
	watcher  *fsnotify.Watcher
}

// Load reads the catalog file and returns a Registry over it.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	mods, err := r.read()
	if err != nil {
		return nil, err
	}
	r.modules = mods
	return r, nil
}

func (r *Registry) read() (map[string]ModuleEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", r.path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", r.path, err)
	}
	if len(f.Modules) == 0 {
		return nil, fmt.Errorf("catalog %s: no modules declared", r.path)
	}
	for name, m := range f.Modules {
		if len(m.Actions) == 0 {
			return nil, fmt.Errorf("catalog %s: module %q declares no actions", r.path, name)
		}
	}
	return f.Modules, nil
}

// Address returns the network address of a module, or "" if unknown.
func (r *Registry) Address(module string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[module].Address
}

// Actions returns the action names a module accepts.
func (r *Registry) Actions(module string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[module]
	if !ok {
		return nil
	}
	out := make([]string, len(m.Actions))
	copy(out, m.Actions)
	return out
}

// Modules returns the registered module names, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.modules))
	for name := range r.modules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Catalog returns a snapshot copy of module → action set. The dispatcher
// takes this once at initialization; later catalog reloads do not reach it.
func (r *Registry) Catalog() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.modules))
	for name, m := range r.modules {
		actions := make([]string, len(m.Actions))
		copy(actions, m.Actions)
		out[name] = actions
	}
	return out
}

// OnChange registers a callback invoked whenever the catalog reloads.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Reload forces an immediate re-read of the catalog file.
func (r *Registry) Reload() error {
	mods, err := r.read()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.modules = mods
	callbacks := make([]func(), len(r.onChange))
	copy(callbacks, r.onChange)
	r.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
	return nil
}

// Watch starts a background goroutine that re-reads the catalog on file
// changes. Call the returned stop function to clean up.
func (r *Registry) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("catalog watcher: %w", err)
	}
	if err := w.Add(r.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("catalog watcher add %s: %w", r.path, err)
	}
	r.watcher = w

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
					// Keep the old catalog if the new file is broken.
					_ = r.Reload()
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
