package mapper

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stratakv/strata/pkg/errors"
)

// Registry manages registered mappers by name.
type Registry struct {
	mu      sync.RWMutex
	mappers map[string]*Mapper
}

// NewRegistry creates a new mapper registry.
func NewRegistry() *Registry {
	return &Registry{
		mappers: make(map[string]*Mapper),
	}
}

// Register validates and registers a mapper. Registering a name twice is a
// no-op and returns nil.
func (r *Registry) Register(m *Mapper) error {
	if m == nil {
		return fmt.Errorf("%w: nil mapper", errors.ErrInvalidMapper)
	}
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.mappers[m.Name]; exists {
		return nil
	}
	r.mappers[m.Name] = m
	return nil
}

// Get retrieves a registered mapper by name.
func (r *Registry) Get(name string) (*Mapper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.mappers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownMapper, name)
	}
	return m, nil
}

// Names returns the registered mapper names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.mappers))
	for name := range r.mappers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
