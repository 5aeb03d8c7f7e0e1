// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"log/slog"
	"os"
)

// NewLogger creates the logger commands run with. format selects the
// stderr handler: "text" for humans, "json" for scripts and log
// collectors. verbose lowers the level to Debug, which includes
// per-delta noise like stale-drop messages.
//
// Commands scope the logger with command-specific context via With,
// e.g. logger.With("command", "serve").
func NewLogger(format string, verbose bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
}
