// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tag

import "sort"

// ReadPolicy picks the single displayed tag when several origins
// assert values for the same (namespace, key). Candidates are always
// nonempty and sorted by origin ascending. The policy is a pure
// presentation choice: the underlying set keeps every candidate
// regardless of what the policy returns.
type ReadPolicy func(candidates []Tag) Tag

// DefaultReadPolicy picks the assertion from the lexicographically
// smallest origin. Every peer computes the same winner without
// coordination, so two peers with identical sets render identical
// views.
func DefaultReadPolicy(candidates []Tag) Tag {
	return candidates[0]
}

// Resolve collapses a TagSet to one tag per (namespace, key) using
// policy (nil means DefaultReadPolicy). The result is sorted by
// namespace then key. The set itself is not modified.
func Resolve(set *TagSet, policy ReadPolicy) []Tag {
	if policy == nil {
		policy = DefaultReadPolicy
	}
	refs := set.Refs()
	resolved := make([]Tag, 0, len(refs))
	for _, ref := range refs {
		candidates := set.TagsFor(ref)
		if len(candidates) == 0 {
			continue
		}
		resolved = append(resolved, policy(candidates))
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Ref().compare(resolved[j].Ref()) < 0 })
	return resolved
}
