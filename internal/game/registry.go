package game

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds all registered symbol catalogs.
type Registry struct {
	mu       sync.RWMutex
	catalogs map[string]Catalog
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{catalogs: make(map[string]Catalog)}
}

// DefaultRegistry returns a registry holding the built-in catalogs.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Letters)
	r.Register(Classic)
	return r
}

// Register adds a catalog. Panics on duplicate names or duplicate symbols.
func (r *Registry) Register(c Catalog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.catalogs[c.Name]; exists {
		panic(fmt.Sprintf("catalog %q already registered", c.Name))
	}
	seen := make(map[Symbol]struct{}, len(c.Symbols))
	for _, s := range c.Symbols {
		if _, dup := seen[s]; dup {
			panic(fmt.Sprintf("catalog %q repeats symbol %q", c.Name, s))
		}
		seen[s] = struct{}{}
	}
	r.catalogs[c.Name] = Catalog{Name: c.Name, Symbols: c.All()}
}

// Get returns a catalog by name.
func (r *Registry) Get(name string) (Catalog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.catalogs[name]
	return c, ok
}

// List returns info for all registered catalogs, sorted by name.
func (r *Registry) List() []CatalogInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]CatalogInfo, 0, len(r.catalogs))
	for _, c := range r.catalogs {
		infos = append(infos, c.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
