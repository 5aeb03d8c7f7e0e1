// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a plugin protocol version. Versions within one major
// line are totally ordered and mutually compatible; versions across
// major lines are incomparable, and negotiation rejects the
// namespace rather than guessing.
type Version struct {
	Major int
	Minor int
}

// ParseVersion parses "major.minor" decimal form.
func ParseVersion(s string) (Version, error) {
	majorPart, minorPart, found := strings.Cut(s, ".")
	if !found {
		return Version{}, fmt.Errorf("version %q missing '.' separator", s)
	}
	major, err := strconv.Atoi(majorPart)
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("version %q has invalid major component", s)
	}
	minor, err := strconv.Atoi(minorPart)
	if err != nil || minor < 0 {
		return Version{}, fmt.Errorf("version %q has invalid minor component", s)
	}
	return Version{Major: major, Minor: minor}, nil
}

// String returns the "major.minor" form, satisfying fmt.Stringer.
func (v Version) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// Validate rejects negative components.
func (v Version) Validate() error {
	if v.Major < 0 || v.Minor < 0 {
		return fmt.Errorf("version %s has negative component", v)
	}
	return nil
}

// Compatible reports whether two versions can interoperate: same
// major line.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Effective returns the version a Common namespace operates at: the
// lower minor within the shared major line. Callers must have
// checked Compatible first.
func (v Version) Effective(other Version) Version {
	if other.Minor < v.Minor {
		return other
	}
	return v
}
