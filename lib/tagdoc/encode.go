// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tagdoc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tagmesh/tagmesh/lib/tag"
)

// Encode renders a TagSet as a canonical tag document: plain JSON,
// sorted keys, two-space indent, trailing newline. Encode is pure;
// the set is not modified.
//
// A document carries assertions from a single origin, so sets where
// any (namespace, key) is asserted by more than one origin cannot be
// encoded. Such sets come from merging, not from decoding; resolve
// them to a single-origin view first (tag.Resolve plus a rebuild, or
// the store's export path, which does this).
func Encode(set *tag.TagSet) ([]byte, error) {
	entries := make(map[string]any, set.Len())
	for _, ref := range set.Refs() {
		tags := set.TagsFor(ref)
		if len(tags) > 1 {
			return nil, fmt.Errorf("tagdoc: cannot encode %s: asserted by %d origins", ref, len(tags))
		}
		entries[ref.String()] = tags[0].Value.Interface()
	}

	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(entries); err != nil {
		return nil, fmt.Errorf("tagdoc: encode: %w", err)
	}
	return buffer.Bytes(), nil
}
