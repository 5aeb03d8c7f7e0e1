// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package media is the content boundary of the tag core.
//
// The tag model never holds file bytes, only an opaque handle: a
// [ContentRef], the BLAKE3 hash of the content. Everything that
// actually stores or moves bytes sits behind the [Store] interface.
// [DirStore] is the bundled implementation: a content-addressed
// directory tree with optional compression and optional
// XChaCha20-Poly1305 encryption under per-blob derived keys.
//
// [DetectType] classifies content by filename extension into the
// coarse buckets (image, video, audio, document) the import path uses
// to seed core:type tags.
package media
