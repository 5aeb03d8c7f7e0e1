// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration.
//
// Tagmesh uses two serialization formats with a clear boundary:
//
//   - The JSON-with-comments document format for everything a person
//     edits or a foreign tool consumes: tag documents, config files,
//     CLI --json output.
//   - CBOR for machine-to-machine bytes: protocol frames between
//     peers, stored tag values in the sqlite backend, and journal
//     entries in the delta log.
//
// This package provides the shared CBOR encoding and decoding modes
// so every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces
// identical bytes, which the delta log relies on when comparing
// journal entries.
//
// For buffer-oriented operations (stored values, journal entries):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: the type is only ever serialized as CBOR (wire
//     payloads, journal entries).
//   - `json` tag: the type serves both JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats (capability descriptors, which
//     appear in wire payloads and in CLI output, use this).
//
// Never use both `cbor` and `json` tags on the same field.
package codec
