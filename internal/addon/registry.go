package addon

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Registry holds the registered addons, keyed by id.
type Registry struct {
	mu     sync.RWMutex
	addons map[string]*Addon
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{addons: make(map[string]*Addon)}
}

// Register adds an addon. Duplicate ids are rejected.
func (r *Registry) Register(a *Addon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.addons[a.ID()]; exists {
		return fmt.Errorf("addon %q already registered", a.ID())
	}
	r.addons[a.ID()] = a
	return nil
}

// Get returns the addon with the given id.
func (r *Registry) Get(id string) (*Addon, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.addons[id]
	return a, ok
}

// IDs returns the registered addon ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.addons))
	for id := range r.addons {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Discover walks addonsDir for */manifest.yaml files and registers a
// manifest-only addon for each (built-in actions only). Addons with Go
// handlers are registered programmatically instead.
func (r *Registry) Discover(addonsDir string) error {
	entries, err := os.ReadDir(addonsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read addons dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(addonsDir, entry.Name(), "manifest.yaml")
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}
		m, err := LoadManifest(manifestPath)
		if err != nil {
			return err
		}
		a, err := New(m, nil)
		if err != nil {
			return err
		}
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}
