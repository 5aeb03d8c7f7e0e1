// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package tagdoc converts between tag sets and the textual tag
// document format, the designated interchange form for anything
// outside the core: exports, imports, and hand-edited documents.
//
// # Document Format
//
// A tag document is UTF-8 JSON extended with the legibility features
// people expect when editing by hand:
//
//   - line comments and /* block comments */
//   - trailing commas in objects and arrays
//   - unquoted object keys (ASCII identifiers)
//
// The top level must be an object. Each top-level key is a
// "namespace:key" pair, split on the first colon; the key part may
// itself contain colons. Values are strings, numbers, booleans,
// ordered arrays, or nested objects. null is not a tag value and is
// rejected. A document describes assertions from exactly one origin,
// so a namespace:key entry appearing twice is an error rather than a
// last-wins merge.
//
//	{
//	  // asserted by whichever origin imports this
//	  "core:name": "beach.jpg",
//	  "photo:rating": 5,
//	  "core:tags": ["vacation", "2023",],
//	}
//
// [Encode] emits the canonical subset: plain JSON, sorted keys,
// two-space indent, trailing newline. Canonical output is itself a
// valid document, so decode∘encode is the identity on anything
// decode accepts.
//
// Decoding never touches any store: a failed decode returns a
// [SchemaError] and nothing else happens.
package tagdoc
