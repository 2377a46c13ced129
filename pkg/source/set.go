package source

import (
	"sort"

	"github.com/jmgilman/go/errors"

	"datainspect/pkg/inspecterr"
)

// Set is the ordered list of active sources.
// It is not safe for concurrent use; the navigator serializes access.
type Set struct {
	sources []*Source
}

// NewSet creates a set from the given sources, rejecting invalid or duplicate names
func NewSet(sources ...*Source) (*Set, error) {
	s := &Set{}
	for _, src := range sources {
		if err := s.Add(src); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends a source. Names must be non-empty and unique, since the name
// is the key into both the prefetch cache and the presentation sink.
func (s *Set) Add(src *Source) error {
	if src == nil || src.Name == "" {
		return errors.New(errors.CodeInvalidInput, "source name must not be empty")
	}
	if s.index(src.Name) >= 0 {
		return errors.WrapWithContext(inspecterr.ErrDuplicateSource, errors.CodeAlreadyExists,
			"cannot register source", map[string]interface{}{"source": src.Name})
	}
	s.sources = append(s.sources, src)
	return nil
}

// Remove deletes the named source and returns it
func (s *Set) Remove(name string) (*Source, error) {
	i := s.index(name)
	if i < 0 {
		return nil, unknown(name)
	}
	old := s.sources[i]
	s.sources = append(s.sources[:i], s.sources[i+1:]...)
	return old, nil
}

// Replace swaps the named source for src, keeping its position.
// src may carry a new name as long as it does not collide with another source.
func (s *Set) Replace(name string, src *Source) (*Source, error) {
	i := s.index(name)
	if i < 0 {
		return nil, unknown(name)
	}
	if src == nil || src.Name == "" {
		return nil, errors.New(errors.CodeInvalidInput, "source name must not be empty")
	}
	if j := s.index(src.Name); j >= 0 && j != i {
		return nil, errors.WrapWithContext(inspecterr.ErrDuplicateSource, errors.CodeAlreadyExists,
			"cannot rename source", map[string]interface{}{"source": name, "new_name": src.Name})
	}
	old := s.sources[i]
	s.sources[i] = src
	return old, nil
}

// Get returns the named source
func (s *Set) Get(name string) (*Source, bool) {
	i := s.index(name)
	if i < 0 {
		return nil, false
	}
	return s.sources[i], true
}

// All returns the sources in registration order
func (s *Set) All() []*Source {
	return append([]*Source(nil), s.sources...)
}

// Names returns the source names in registration order
func (s *Set) Names() []string {
	names := make([]string, len(s.sources))
	for i, src := range s.sources {
		names[i] = src.Name
	}
	return names
}

// Len returns the number of sources
func (s *Set) Len() int {
	return len(s.sources)
}

// Bounds returns the effective length of the navigation range: the minimum
// file count over sources that have any files.
//
// When no source has files the length pins to 1 (a degenerate single-step
// range) and the error is ErrEmptySourceSet. When non-zero lengths differ
// the minimum is still returned together with ErrSourceMismatch. Both
// errors are informational.
func (s *Set) Bounds() (int, error) {
	lengths := make(map[string]interface{})
	minLen := 0
	mismatch := false
	for _, src := range s.sources {
		n := src.Len()
		if n == 0 {
			continue
		}
		lengths[src.Name] = n
		switch {
		case minLen == 0:
			minLen = n
		case n != minLen:
			mismatch = true
			if n < minLen {
				minLen = n
			}
		}
	}

	if minLen == 0 {
		return 1, inspecterr.ErrEmptySourceSet
	}
	if mismatch {
		return minLen, errors.WrapWithContext(inspecterr.ErrSourceMismatch, errors.CodeConflict,
			"navigating over the shortest source", lengths)
	}
	return minLen, nil
}

// Lengths returns the file count of every source, sorted by name for display
func (s *Set) Lengths() []NamedLength {
	out := make([]NamedLength, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, NamedLength{Name: src.Name, Len: src.Len()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NamedLength pairs a source name with its file count
type NamedLength struct {
	Name string `json:"name"`
	Len  int    `json:"len"`
}

func (s *Set) index(name string) int {
	for i, src := range s.sources {
		if src.Name == name {
			return i
		}
	}
	return -1
}

func unknown(name string) error {
	return errors.WrapWithContext(inspecterr.ErrUnknownSource, errors.CodeNotFound,
		"no such source", map[string]interface{}{"source": name})
}
