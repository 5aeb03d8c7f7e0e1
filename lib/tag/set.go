// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tag

import (
	"sort"
	"strings"
)

// setKey is the full identity of one assertion within a TagSet.
type setKey struct {
	namespace string
	key       string
	origin    Origin
}

func (k setKey) compare(other setKey) int {
	if c := strings.Compare(k.namespace, other.namespace); c != 0 {
		return c
	}
	if c := strings.Compare(k.key, other.key); c != 0 {
		return c
	}
	return strings.Compare(string(k.origin), string(other.origin))
}

// TagSet is the complete tag state of one node: a mapping from
// (namespace, key, origin) to value. Within a set the triple is
// unique; different origins may hold different values for the same
// (namespace, key) and all of them are retained.
//
// A TagSet belongs to exactly one node and is never shared between
// nodes. Code that needs an independent copy must Clone; handing the
// same *TagSet to two nodes breaks the ownership rule the store
// relies on.
//
// TagSet is not safe for concurrent use. The store serializes access
// per node.
type TagSet struct {
	tags map[setKey]Value
}

// NewTagSet returns an empty TagSet.
func NewTagSet() *TagSet {
	return &TagSet{tags: make(map[setKey]Value)}
}

// Len returns the number of assertions in the set. Nil-safe.
func (s *TagSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tags)
}

// Put validates t and inserts it, overwriting any existing assertion
// with the same (namespace, key, origin).
func (s *TagSet) Put(t Tag) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.tags[setKey{namespace: t.Namespace, key: t.Key, origin: t.Origin}] = t.Value
	return nil
}

// Remove deletes origin's assertion for ref. Reports whether an
// assertion was present.
func (s *TagSet) Remove(ref TagRef, origin Origin) bool {
	k := setKey{namespace: ref.Namespace, key: ref.Key, origin: origin}
	if _, ok := s.tags[k]; !ok {
		return false
	}
	delete(s.tags, k)
	return true
}

// Get returns origin's value for ref.
func (s *TagSet) Get(ref TagRef, origin Origin) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.tags[setKey{namespace: ref.Namespace, key: ref.Key, origin: origin}]
	return v, ok
}

// TagsFor returns every origin's assertion for ref, sorted by origin.
// Nil-safe; returns nil when no origin has asserted ref.
func (s *TagSet) TagsFor(ref TagRef) []Tag {
	if s == nil {
		return nil
	}
	var tags []Tag
	for k, v := range s.tags {
		if k.namespace == ref.Namespace && k.key == ref.Key {
			tags = append(tags, Tag{Namespace: k.namespace, Key: k.key, Origin: k.origin, Value: v})
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Origin < tags[j].Origin })
	return tags
}

// All returns every assertion, sorted by namespace, key, then origin.
// Nil-safe.
func (s *TagSet) All() []Tag {
	if s == nil {
		return nil
	}
	keys := make([]setKey, 0, len(s.tags))
	for k := range s.tags {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].compare(keys[j]) < 0 })
	tags := make([]Tag, len(keys))
	for i, k := range keys {
		tags[i] = Tag{Namespace: k.namespace, Key: k.key, Origin: k.origin, Value: s.tags[k]}
	}
	return tags
}

// Refs returns the distinct (namespace, key) pairs present in the
// set, sorted. Nil-safe.
func (s *TagSet) Refs() []TagRef {
	if s == nil {
		return nil
	}
	seen := make(map[TagRef]struct{})
	for k := range s.tags {
		seen[TagRef{Namespace: k.namespace, Key: k.key}] = struct{}{}
	}
	refs := make([]TagRef, 0, len(seen))
	for r := range seen {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].compare(refs[j]) < 0 })
	return refs
}

// Clone returns an independent deep-enough copy: the assertion map is
// copied, and values are immutable, so the clone shares no mutable
// state with the original. Clone of nil returns an empty set.
func (s *TagSet) Clone() *TagSet {
	clone := NewTagSet()
	if s == nil {
		return clone
	}
	for k, v := range s.tags {
		clone.tags[k] = v
	}
	return clone
}

// Equal reports whether both sets contain exactly the same
// assertions. Nil and empty sets compare equal.
func (s *TagSet) Equal(other *TagSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	if s == nil || other == nil {
		return true
	}
	for k, v := range s.tags {
		ov, ok := other.tags[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
