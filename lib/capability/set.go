// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"fmt"
	"sort"

	"github.com/tagmesh/tagmesh/lib/tag"
)

// Descriptor declares support for one tag namespace.
//
// Required controls what happens when the other side of a session
// lacks the namespace: a required namespace is withheld entirely
// (Rejected), an optional one still travels as opaque values
// (Degraded). Require a namespace only when storing its tags without
// interpretation would corrupt their meaning.
type Descriptor struct {
	Namespace string  `json:"namespace"`
	Version   Version `json:"version"`
	Required  bool    `json:"required,omitempty"`
}

// Validate checks the namespace grammar and version.
func (d Descriptor) Validate() error {
	if err := tag.ValidateNamespace(d.Namespace); err != nil {
		return fmt.Errorf("capability: %w", err)
	}
	if err := d.Version.Validate(); err != nil {
		return fmt.Errorf("capability %s: %w", d.Namespace, err)
	}
	return nil
}

// String renders "namespace@major.minor" with a "!" suffix when
// required, for logs.
func (d Descriptor) String() string {
	s := d.Namespace + "@" + d.Version.String()
	if d.Required {
		s += "!"
	}
	return s
}

// Set is one peer's capability declaration: at most one descriptor
// per namespace. A Set is owned by a single peer for the duration of
// a connection and is recomputed fresh at each negotiation, never
// persisted across sessions.
//
// Set is not safe for concurrent mutation; build it fully before
// handing it to a session.
type Set struct {
	descriptors map[string]Descriptor
}

// NewSet builds a Set from descriptors. Duplicate namespaces and
// invalid descriptors are rejected.
func NewSet(descriptors ...Descriptor) (*Set, error) {
	s := &Set{descriptors: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := s.Add(d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts a descriptor. Adding a namespace twice is an error:
// a peer has exactly one view of each plugin.
func (s *Set) Add(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := s.descriptors[d.Namespace]; exists {
		return fmt.Errorf("capability: duplicate namespace %q", d.Namespace)
	}
	s.descriptors[d.Namespace] = d
	return nil
}

// Get returns the descriptor for namespace. Nil-safe.
func (s *Set) Get(namespace string) (Descriptor, bool) {
	if s == nil {
		return Descriptor{}, false
	}
	d, ok := s.descriptors[namespace]
	return d, ok
}

// Len returns the number of declared namespaces. Nil-safe.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.descriptors)
}

// Namespaces returns the declared namespaces, sorted. Nil-safe.
func (s *Set) Namespaces() []string {
	if s == nil {
		return nil
	}
	namespaces := make([]string, 0, len(s.descriptors))
	for namespace := range s.descriptors {
		namespaces = append(namespaces, namespace)
	}
	sort.Strings(namespaces)
	return namespaces
}

// All returns every descriptor, sorted by namespace. Nil-safe.
func (s *Set) All() []Descriptor {
	namespaces := s.Namespaces()
	descriptors := make([]Descriptor, len(namespaces))
	for i, namespace := range namespaces {
		descriptors[i] = s.descriptors[namespace]
	}
	return descriptors
}

// Clone returns an independent copy. Clone of nil returns an empty
// set.
func (s *Set) Clone() *Set {
	clone := &Set{descriptors: make(map[string]Descriptor, s.Len())}
	if s != nil {
		for namespace, d := range s.descriptors {
			clone.descriptors[namespace] = d
		}
	}
	return clone
}
