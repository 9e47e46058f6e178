package event

import (
	"fmt"
	"sort"
	"sync"
)

var (
	sourcesMu sync.RWMutex
	sources   = make(map[string]func() Source)
)

// RegisterSource makes a native event source available by name.
// It panics if called twice with the same name.
func RegisterSource(name string, factory func() Source) {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()
	if factory == nil {
		panic("event: RegisterSource factory is nil")
	}
	if _, dup := sources[name]; dup {
		panic("event: RegisterSource called twice for source " + name)
	}
	sources[name] = factory
}

// NewSource returns a fresh source registered under name.
func NewSource(name string) (Source, error) {
	sourcesMu.RLock()
	factory, ok := sources[name]
	sourcesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("event: unknown source %q (available: %v)", name, Sources())
	}
	return factory(), nil
}

// Sources returns the sorted names of the registered sources.
func Sources() []string {
	sourcesMu.RLock()
	defer sourcesMu.RUnlock()
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
