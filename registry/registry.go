package registry

import (
	"errors"
	"sync/atomic"
)

// Registry maps descriptor ids to descriptors and remembers the order
// they were registered in.
type Registry struct {
	entries []Descriptor
	index   map[string]int
}

// New builds a Registry from descs. Invalid or duplicate entries are left
// out and reported as *EntryError values joined into the returned error;
// the returned Registry is never nil.
func New(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		entries: make([]Descriptor, 0, len(descs)),
		index:   make(map[string]int, len(descs)),
	}

	var errs []error
	for i, d := range descs {
		if err := d.Validate(); err != nil {
			errs = append(errs, &EntryError{Index: i, ID: d.ID, Err: err})
			continue
		}
		if _, ok := r.index[d.ID]; ok {
			errs = append(errs, &EntryError{Index: i, ID: d.ID, Err: ErrDuplicateID})
			continue
		}
		r.index[d.ID] = len(r.entries)
		r.entries = append(r.entries, d.clone())
	}

	return r, errors.Join(errs...)
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Descriptors returns copies of all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	if r == nil {
		return nil
	}
	out := make([]Descriptor, len(r.entries))
	for i, d := range r.entries {
		out[i] = d.clone()
	}
	return out
}

// Get returns a copy of the descriptor with the given id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	i, ok := r.index[id]
	if !ok {
		return Descriptor{}, false
	}
	return r.entries[i].clone(), true
}

// Position returns the registration position of id, or -1.
func (r *Registry) Position(id string) int {
	if r == nil {
		return -1
	}
	if i, ok := r.index[id]; ok {
		return i
	}
	return -1
}

// Store holds the process-wide current Registry.
type Store struct {
	cur atomic.Pointer[Registry]
}

func NewStore(r *Registry) *Store {
	s := &Store{}
	s.Replace(r)
	return s
}

// Load returns the current snapshot. It is never nil.
func (s *Store) Load() *Registry {
	if r := s.cur.Load(); r != nil {
		return r
	}
	return &Registry{index: map[string]int{}}
}

// Replace swaps in r and returns the previous snapshot.
func (s *Store) Replace(r *Registry) *Registry {
	if r == nil {
		r = &Registry{index: map[string]int{}}
	}
	return s.cur.Swap(r)
}
