// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for tagmesh binaries.
//
// Configuration is loaded from a single YAML file specified by:
//   - TAGMESH_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// Values may reference environment variables with ${VAR} syntax;
// references to unset variables are a load error rather than an empty
// expansion. The file may contain environment-specific sections
// (development, production) that override base values when the
// configured environment matches.
package config
