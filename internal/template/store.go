// internal/template/store.go
package template

import (
	"sync/atomic"

	stderrors "intent-gateway/internal/common/errors"
)

// TemplateSet is an immutable snapshot of validated templates. Callers must
// not mutate the returned slices.
type TemplateSet struct {
	templates []Template
	index     map[string]int
}

// NewTemplateSet builds a snapshot. The input slice is expected in stable id
// order; the loader guarantees this.
func NewTemplateSet(templates []Template) *TemplateSet {
	index := make(map[string]int, len(templates))
	for i, t := range templates {
		index[t.ID] = i
	}
	return &TemplateSet{templates: templates, index: index}
}

// Get returns the template with the given id.
func (s *TemplateSet) Get(id string) (*Template, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.templates[i], true
}

// All returns every template in ascending id order.
func (s *TemplateSet) All() []Template {
	return s.templates
}

// Len returns the number of templates in the set.
func (s *TemplateSet) Len() int {
	return len(s.templates)
}

// Store serves the current TemplateSet and swaps it atomically on reload.
// Readers never observe a partially updated library.
type Store struct {
	current atomic.Pointer[TemplateSet]
}

// NewStore creates a store seeded with the given set.
func NewStore(set *TemplateSet) *Store {
	s := &Store{}
	if set == nil {
		set = NewTemplateSet(nil)
	}
	s.current.Store(set)
	return s
}

// Snapshot returns the current immutable set.
func (s *Store) Snapshot() *TemplateSet {
	return s.current.Load()
}

// Get returns the template with the given id from the current set.
func (s *Store) Get(id string) (*Template, error) {
	t, ok := s.current.Load().Get(id)
	if !ok {
		return nil, stderrors.NewTemplateNotFoundError(id)
	}
	return t, nil
}

// All returns every template in the current set in ascending id order.
func (s *Store) All() []Template {
	return s.current.Load().All()
}

// Replace atomically swaps in a new set. In-flight queries keep the snapshot
// they started with.
func (s *Store) Replace(set *TemplateSet) {
	if set == nil {
		set = NewTemplateSet(nil)
	}
	s.current.Store(set)
}
