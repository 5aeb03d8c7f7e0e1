// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package vclock implements per-origin version vectors.
//
// Each origin peer carries one monotonically increasing counter.
// There is no global ordering authority, so causality questions
// ("have I seen this edit?") are answered per origin: a delta from
// origin P with clock c is new exactly when the vector's component
// for P is below c.
//
// A Vector is a plain map so it serializes naturally in both the
// document and the wire codec. The zero value (nil map) is a valid
// empty vector for reads; use New or Observe (on a non-nil vector)
// to build one up.
package vclock

import (
	"sort"
	"strconv"
	"strings"

	"github.com/tagmesh/tagmesh/lib/tag"
)

// Vector maps each origin to the highest clock value seen from it.
// Absent origins are implicitly at zero.
type Vector map[tag.Origin]uint64

// New returns an empty vector.
func New() Vector {
	return make(Vector)
}

// Get returns origin's component, zero when absent. Nil-safe.
func (v Vector) Get(origin tag.Origin) uint64 {
	return v[origin]
}

// Observe records clock for origin if it exceeds the current
// component. Returns true when the vector advanced.
func (v Vector) Observe(origin tag.Origin, clock uint64) bool {
	if clock <= v[origin] {
		return false
	}
	v[origin] = clock
	return true
}

// Next returns origin's component plus one: the clock value a local
// edit by origin should stamp. Nil-safe.
func (v Vector) Next(origin tag.Origin) uint64 {
	return v[origin] + 1
}

// Clone returns an independent copy. Clone of nil returns an empty
// vector.
func (v Vector) Clone() Vector {
	clone := make(Vector, len(v))
	for origin, clock := range v {
		clone[origin] = clock
	}
	return clone
}

// Merge folds other into v, keeping the componentwise maximum.
func (v Vector) Merge(other Vector) {
	for origin, clock := range other {
		v.Observe(origin, clock)
	}
}

// Dominates reports whether every component of other is ≤ the
// corresponding component of v. A vector dominates itself.
func (v Vector) Dominates(other Vector) bool {
	for origin, clock := range other {
		if v[origin] < clock {
			return false
		}
	}
	return true
}

// Equal reports componentwise equality, treating absent components
// as zero.
func (v Vector) Equal(other Vector) bool {
	return v.Dominates(other) && other.Dominates(v)
}

// String renders "origin:clock" pairs sorted by origin, for logs.
func (v Vector) String() string {
	if len(v) == 0 {
		return "empty"
	}
	origins := make([]tag.Origin, 0, len(v))
	for origin := range v {
		origins = append(origins, origin)
	}
	sort.Slice(origins, func(i, j int) bool { return origins[i] < origins[j] })
	var sb strings.Builder
	for i, origin := range origins {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(string(origin))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(v[origin], 10))
	}
	return sb.String()
}
