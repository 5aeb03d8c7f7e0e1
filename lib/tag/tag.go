// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tag

import (
	"fmt"
	"strings"
)

// CoreNamespace is the reserved namespace for tags every peer
// understands without any plugin (display name, item type, and so
// on). All other namespaces belong to plugins and travel subject to
// capability negotiation.
const CoreNamespace = "core"

const (
	maxNamespaceLength = 64
	maxKeyLength       = 256
)

// ValidateNamespace checks a tag namespace: lowercase alphanumeric
// with interior dots, underscores, and hyphens, starting with an
// alphanumeric. Colons are excluded so that the document form
// "namespace:key" splits unambiguously on the first colon.
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace is empty")
	}
	if len(namespace) > maxNamespaceLength {
		return fmt.Errorf("namespace %q exceeds %d bytes", truncate(namespace), maxNamespaceLength)
	}
	for i := 0; i < len(namespace); i++ {
		c := namespace[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case i > 0 && (c == '.' || c == '_' || c == '-'):
		default:
			return fmt.Errorf("namespace %q contains invalid byte %q at offset %d", truncate(namespace), c, i)
		}
	}
	return nil
}

// ValidateKey checks a tag key: nonempty, within length bounds, no
// control characters. Keys may contain colons; the document form
// splits "namespace:key" on the first colon only.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key is empty")
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("key %q exceeds %d bytes", truncate(key), maxKeyLength)
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x20 || key[i] == 0x7f {
			return fmt.Errorf("key %q contains control byte 0x%02x at offset %d", truncate(key), key[i], i)
		}
	}
	return nil
}

// Tag is a single metadata assertion: origin claims that (namespace,
// key) has the given value for some node. The node association is
// carried by the enclosing TagSet or Delta, not by the Tag itself.
type Tag struct {
	Namespace string
	Key       string
	Origin    Origin
	Value     Value
}

// Validate checks all four components.
func (t Tag) Validate() error {
	if err := ValidateNamespace(t.Namespace); err != nil {
		return err
	}
	if err := ValidateKey(t.Key); err != nil {
		return err
	}
	if err := t.Origin.Validate(); err != nil {
		return err
	}
	if t.Value.IsZero() {
		return fmt.Errorf("tag %s has no value", t.Ref())
	}
	return nil
}

// Ref returns the (namespace, key) pair of this tag.
func (t Tag) Ref() TagRef {
	return TagRef{Namespace: t.Namespace, Key: t.Key}
}

// String renders the tag as "namespace:key=value@origin" for logs and
// diagnostics.
func (t Tag) String() string {
	return t.Ref().String() + "=" + t.Value.String() + "@" + string(t.Origin)
}

// TagRef names a (namespace, key) pair without a value or origin.
// Deltas use it to reference removals; queries use it to reference
// the tag being matched.
type TagRef struct {
	Namespace string
	Key       string
}

// ParseTagRef parses the "namespace:key" document form, splitting on
// the first colon. The key part may itself contain colons.
func ParseTagRef(s string) (TagRef, error) {
	namespace, key, found := strings.Cut(s, ":")
	if !found {
		return TagRef{}, fmt.Errorf("tag reference %q missing ':' separator", truncate(s))
	}
	ref := TagRef{Namespace: namespace, Key: key}
	if err := ref.Validate(); err != nil {
		return TagRef{}, err
	}
	return ref, nil
}

// Validate checks both components.
func (r TagRef) Validate() error {
	if err := ValidateNamespace(r.Namespace); err != nil {
		return err
	}
	return ValidateKey(r.Key)
}

// String returns the "namespace:key" document form.
func (r TagRef) String() string {
	return r.Namespace + ":" + r.Key
}

// compare orders refs by namespace then key.
func (r TagRef) compare(other TagRef) int {
	if c := strings.Compare(r.Namespace, other.Namespace); c != 0 {
		return c
	}
	return strings.Compare(r.Key, other.Key)
}
