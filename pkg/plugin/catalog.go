package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh plugin handle from its manifest.
type Factory func(m *Manifest) (Plugin, error)

// Catalog is the table of compiled plugin factories. A plugin folder selects
// its factory through the manifest.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates a catalog holding the script factory.
func NewCatalog() *Catalog {
	c := &Catalog{factories: make(map[string]Factory)}
	c.factories[ScriptFactory] = NewScriptPlugin
	return c
}

// Register adds a factory under name.
func (c *Catalog) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("factory name and function are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[name]; exists {
		return fmt.Errorf("factory %s already registered", name)
	}
	c.factories[name] = f
	return nil
}

// Lookup returns the factory registered under name.
func (c *Catalog) Lookup(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[name]
	return f, ok
}

// Names returns the registered factory names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
