// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for tagmesh packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. These are the only place
// in the test suite where real wall-clock timeouts are used;
// everything else runs on an injected lib/clock.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
