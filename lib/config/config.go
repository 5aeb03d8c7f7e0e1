// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tagmesh/tagmesh/lib/capability"
	"github.com/tagmesh/tagmesh/lib/tag"
)

// EnvConfigPath is the environment variable naming the config file.
const EnvConfigPath = "TAGMESH_CONFIG"

// Environment identifies the deployment type.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the complete configuration for a tagmesh peer.
type Config struct {
	// Environment identifies the deployment type. Defaults to
	// development.
	Environment Environment `yaml:"environment"`

	// Origin is this peer's identifier. Every tag asserted locally
	// and every delta produced locally carries it. Required for
	// serve; lexicographic order against other origins decides
	// read-policy tie-breaks, so pick stable names.
	Origin string `yaml:"origin"`

	// Store configures tag storage.
	Store StoreConfig `yaml:"store"`

	// Listen are the transport addresses to accept peers on.
	Listen []ListenConfig `yaml:"listen,omitempty"`

	// Peers are the remote peers to connect to on startup.
	Peers []PeerConfig `yaml:"peers,omitempty"`

	// Capabilities declares the namespaces this peer interprets
	// beyond "core". Recomputed into a capability.Set at startup;
	// never persisted across sessions by the engine.
	Capabilities []CapabilityConfig `yaml:"capabilities,omitempty"`

	// Sync configures session behavior.
	Sync SyncConfig `yaml:"sync"`

	// Environment-specific overrides, applied after the base config
	// when Environment matches.
	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields that can be overridden per
// environment.
type Overrides struct {
	Store *StoreConfig `yaml:"store,omitempty"`
	Sync  *SyncConfig  `yaml:"sync,omitempty"`
}

// StoreConfig configures tag storage.
type StoreConfig struct {
	// Backend selects the store implementation: "memory" or
	// "sqlite". Defaults to sqlite when Path is set, memory
	// otherwise.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Required for the sqlite
	// backend.
	Path string `yaml:"path,omitempty"`

	// DeltaLog is the directory for the badger delta journal. Empty
	// disables journaling (peers cannot catch up from this peer
	// beyond live traffic).
	DeltaLog string `yaml:"delta_log,omitempty"`
}

// ListenConfig configures one listening transport.
type ListenConfig struct {
	// Transport is "tcp" or "websocket".
	Transport string `yaml:"transport"`

	// Address is the listen address, e.g. ":7420".
	Address string `yaml:"address"`
}

// PeerConfig configures one outbound peer connection.
type PeerConfig struct {
	// Transport is "tcp" or "websocket".
	Transport string `yaml:"transport"`

	// Address is the peer's address.
	Address string `yaml:"address"`
}

// CapabilityConfig declares support for one namespace.
type CapabilityConfig struct {
	Namespace string `yaml:"namespace"`
	Version   string `yaml:"version"`
	Required  bool   `yaml:"required,omitempty"`
}

// Descriptor converts the YAML form to a capability descriptor.
func (c CapabilityConfig) Descriptor() (capability.Descriptor, error) {
	version, err := capability.ParseVersion(c.Version)
	if err != nil {
		return capability.Descriptor{}, fmt.Errorf("capability %q: %w", c.Namespace, err)
	}
	d := capability.Descriptor{Namespace: c.Namespace, Version: version, Required: c.Required}
	if err := d.Validate(); err != nil {
		return capability.Descriptor{}, err
	}
	return d, nil
}

// SyncConfig configures session behavior.
type SyncConfig struct {
	// NegotiationTimeout bounds the wait for the peer's handshake
	// message. Zero means the 10s default.
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout,omitempty"`

	// CloseOnTimeout closes sessions whose handshake timed out
	// instead of proceeding maximally degraded.
	CloseOnTimeout bool `yaml:"close_on_timeout,omitempty"`

	// QueueSize is the shared inbound delta queue depth. Zero means
	// the engine default.
	QueueSize int `yaml:"queue_size,omitempty"`
}

// Load reads, expands, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnvironment(string(data))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Environment == "" {
		cfg.Environment = Development
	}
	cfg.applyOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadFromEnv loads the config file named by TAGMESH_CONFIG.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return nil, fmt.Errorf("config: %s is not set", EnvConfigPath)
	}
	return Load(path)
}

// applyOverrides merges the matching environment section into the
// base config.
func (c *Config) applyOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}
	if overrides.Store != nil {
		c.Store = *overrides.Store
	}
	if overrides.Sync != nil {
		c.Sync = *overrides.Sync
	}
}

// Validate checks the loaded configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Environment {
	case Development, Production:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.Origin != "" {
		if _, err := tag.NewOrigin(c.Origin); err != nil {
			return fmt.Errorf("origin: %w", err)
		}
	}
	switch c.Store.Backend {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store: sqlite backend requires path")
		}
	default:
		return fmt.Errorf("store: unknown backend %q", c.Store.Backend)
	}
	for i, listen := range c.Listen {
		if err := validateTransport(listen.Transport); err != nil {
			return fmt.Errorf("listen[%d]: %w", i, err)
		}
		if listen.Address == "" {
			return fmt.Errorf("listen[%d]: address is required", i)
		}
	}
	for i, peer := range c.Peers {
		if err := validateTransport(peer.Transport); err != nil {
			return fmt.Errorf("peers[%d]: %w", i, err)
		}
		if peer.Address == "" {
			return fmt.Errorf("peers[%d]: address is required", i)
		}
	}
	for _, declared := range c.Capabilities {
		if _, err := declared.Descriptor(); err != nil {
			return err
		}
	}
	if c.Sync.NegotiationTimeout < 0 {
		return fmt.Errorf("sync: negotiation_timeout must not be negative")
	}
	if c.Sync.QueueSize < 0 {
		return fmt.Errorf("sync: queue_size must not be negative")
	}
	return nil
}

// CapabilitySet builds the peer's capability declaration from the
// configured namespaces.
func (c *Config) CapabilitySet() (*capability.Set, error) {
	descriptors := make([]capability.Descriptor, 0, len(c.Capabilities))
	for _, declared := range c.Capabilities {
		d, err := declared.Descriptor()
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return capability.NewSet(descriptors...)
}

func validateTransport(name string) error {
	switch name {
	case "tcp", "websocket":
		return nil
	case "":
		return fmt.Errorf("transport is required")
	default:
		return fmt.Errorf("unknown transport %q", name)
	}
}

// environmentVariablePattern matches ${VAR} references.
var environmentVariablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvironment replaces ${VAR} references with environment
// variable values. Unset variables are an error: a silently empty
// expansion produces configs that look valid and are not.
func expandEnvironment(content string) (string, error) {
	var missing []string
	expanded := environmentVariablePattern.ReplaceAllStringFunc(content, func(match string) string {
		name := environmentVariablePattern.FindStringSubmatch(match)[1]
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unset environment variables referenced: %v", missing)
	}
	return expanded, nil
}
