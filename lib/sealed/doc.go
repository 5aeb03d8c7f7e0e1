// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for exported tag documents.
// It wraps filippo.io/age for the specific operations the export and
// import paths need: generate x25519 keypairs, encrypt a document to
// multiple recipients, and decrypt with identities loaded from a key
// file.
//
// Sealed output is the binary age v1 format. [IsSealed] recognizes it
// by the format's intro line, so an import path can accept plain and
// sealed documents through the same entry point and decide per file.
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair as strings
//   - [Seal] -- encrypt a document to age public key recipients
//   - [Unseal] -- decrypt with one or more identities
//   - [LoadIdentities] -- read identities from an age key file
//   - [IsSealed] -- detect sealed input
package sealed
