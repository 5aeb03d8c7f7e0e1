// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the tagmesh CLI command tree. Every
// command opens the store directly from the peer's configuration, so
// local reads and edits work whether or not a serve process exists;
// edits made here reach other peers the next time this peer syncs.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/tagmesh/tagmesh/cmd/tagmesh/cli"
	"github.com/tagmesh/tagmesh/lib/config"
	"github.com/tagmesh/tagmesh/lib/deltalog"
	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/lib/version"
	"github.com/tagmesh/tagmesh/store"
)

// Root builds the full command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "tagmesh",
		Description: `Tagmesh: decentralized tag-based file organization.

Files are nodes carrying tags from many origins. Peers exchange tag
deltas directly; there is no central server and no ordering authority.`,
		Subcommands: []*cli.Command{
			serveCommand(),
			nodeCommand(),
			tagCommand(),
			queryCommand(),
			importCommand(),
			exportCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("tagmesh %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Run a sync peer",
				Command:     "tagmesh serve --config peer.yaml",
			},
			{
				Description: "Tag a node and find it again",
				Command:     "tagmesh tag set 7c9e6679-7425-40de-944b-e07fc1f90ae7 project:status '\"active\"'",
			},
		},
	}
}

// storeFlags is the flag group shared by every command that opens the
// store: a config file plus per-invocation overrides.
type storeFlags struct {
	configPath string
	storePath  string
	origin     string
}

func (f *storeFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "config file (default $TAGMESH_CONFIG)")
	flagSet.StringVar(&f.storePath, "store", "", "SQLite store path, overriding the config")
	flagSet.StringVar(&f.origin, "origin", "", "origin for local edits, overriding the config")
}

// load resolves the effective configuration: the config file (flag,
// then environment, then empty defaults) with flag overrides applied.
func (f *storeFlags) load() (*config.Config, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.storePath != "" {
		cfg.Store.Backend = "sqlite"
		cfg.Store.Path = f.storePath
	}
	if f.origin != "" {
		cfg.Origin = f.origin
	}
	return cfg, nil
}

// open loads the configuration and opens the store it names.
func (f *storeFlags) open() (store.Store, *config.Config, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, nil, err
	}
	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if os.Getenv(config.EnvConfigPath) != "" {
		return config.LoadFromEnv()
	}
	return &config.Config{Environment: config.Development}, nil
}

// openStore opens the configured backend. Memory is ephemeral and
// mostly useful for serve; one-shot commands against it see an empty
// store every run.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Origin == "" {
		return nil, fmt.Errorf("origin is required (set origin in the config or pass --origin)")
	}
	origin, err := tag.NewOrigin(cfg.Origin)
	if err != nil {
		return nil, err
	}
	backend := cfg.Store.Backend
	if backend == "" {
		if cfg.Store.Path != "" {
			backend = "sqlite"
		} else {
			backend = "memory"
		}
	}
	switch backend {
	case "memory":
		return store.NewMemory(store.MemoryConfig{Origin: origin})
	case "sqlite":
		return store.NewSQLite(store.SQLiteConfig{Path: cfg.Store.Path, Origin: origin})
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// openLog opens the configured delta journal, or returns nil when
// journaling is disabled. Commands that produce deltas append them so
// peers catching up later see edits made through the CLI.
func openLog(cfg *config.Config) (*deltalog.Log, error) {
	if cfg.Store.DeltaLog == "" {
		return nil, nil
	}
	return deltalog.Open(deltalog.Config{Dir: cfg.Store.DeltaLog})
}

// journal appends a delta to the log if one is open. Journal failures
// are reported but never undo the store edit.
func journal(log *deltalog.Log, d tag.Delta) {
	if log == nil {
		return
	}
	if err := log.Append(d); err != nil {
		fmt.Fprintf(os.Stderr, "warning: journaling delta: %v\n", err)
	}
}

// parseValue interprets a command-line tag value. JSON syntax gives
// typed values ('42', 'true', '["a","b"]'); anything that is not
// valid JSON is taken as a bare string, so plain words need no
// quoting gymnastics.
func parseValue(s string) (tag.Value, error) {
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return tag.StringValue(s), nil
	}
	return tag.FromInterface(decoded)
}

// parseEndpoint parses "transport://address" command-line endpoints,
// e.g. "tcp://:7420" or "ws://hub.example.net:7421".
func parseEndpoint(s string) (config.PeerConfig, error) {
	scheme, address, ok := strings.Cut(s, "://")
	if !ok {
		return config.PeerConfig{}, fmt.Errorf("endpoint %q: want transport://address", s)
	}
	switch scheme {
	case "tcp":
		return config.PeerConfig{Transport: "tcp", Address: address}, nil
	case "ws", "websocket":
		return config.PeerConfig{Transport: "websocket", Address: address}, nil
	default:
		return config.PeerConfig{}, fmt.Errorf("endpoint %q: unknown transport %q", s, scheme)
	}
}

func parseNode(s string) (tag.NodeID, error) {
	id, err := tag.ParseNodeID(s)
	if err != nil {
		return tag.NodeID{}, fmt.Errorf("node %q: %w", s, err)
	}
	return id, nil
}
