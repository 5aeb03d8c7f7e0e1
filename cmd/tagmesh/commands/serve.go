// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tagmesh/tagmesh/cmd/tagmesh/cli"
	"github.com/tagmesh/tagmesh/lib/config"
	"github.com/tagmesh/tagmesh/lib/deltalog"
	"github.com/tagmesh/tagmesh/mesh"
	"github.com/tagmesh/tagmesh/transport"
)

func serveCommand() *cli.Command {
	var flags storeFlags
	var dataDir string
	var listenFlags []string
	var peerFlags []string
	var logFormat string
	var verbose bool

	return &cli.Command{
		Name:    "serve",
		Summary: "Run a sync peer",
		Description: `Run a sync peer: listen on the configured transports, connect to the
configured peers, and merge tag deltas until interrupted.

Command-line listen and peer endpoints are added on top of the config
file's. Endpoints are written transport://address, where transport is
tcp or ws.`,
		Usage: "tagmesh serve [flags]",
		Examples: []cli.Example{
			{
				Description: "Listen for peers on TCP port 7420",
				Command:     "tagmesh serve --config peer.yaml --listen tcp://:7420",
			},
			{
				Description: "Connect out to a hub over WebSocket",
				Command:     "tagmesh serve --config peer.yaml --peer ws://hub.example.net:7421",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&dataDir, "data-dir", "", "directory for store and delta log defaults")
			flagSet.StringArrayVar(&listenFlags, "listen", nil, "additional listen endpoint (repeatable)")
			flagSet.StringArrayVar(&peerFlags, "peer", nil, "additional peer endpoint (repeatable)")
			flagSet.StringVar(&logFormat, "log-format", "text", "log format: text or json")
			flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("serve takes no positional arguments")
			}
			logger, err := cli.NewLogger(logFormat, verbose)
			if err != nil {
				return err
			}

			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if dataDir != "" {
				if cfg.Store.Path == "" {
					cfg.Store.Backend = "sqlite"
					cfg.Store.Path = filepath.Join(dataDir, "tags.db")
				}
				if cfg.Store.DeltaLog == "" {
					cfg.Store.DeltaLog = filepath.Join(dataDir, "deltalog")
				}
			}
			for _, endpoint := range listenFlags {
				parsed, err := parseEndpoint(endpoint)
				if err != nil {
					return err
				}
				cfg.Listen = append(cfg.Listen, config.ListenConfig{Transport: parsed.Transport, Address: parsed.Address})
			}
			for _, endpoint := range peerFlags {
				parsed, err := parseEndpoint(endpoint)
				if err != nil {
					return err
				}
				cfg.Peers = append(cfg.Peers, parsed)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger.With("command", "serve"))
		},
	}
}

// serve runs the peer until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var log *deltalog.Log
	if cfg.Store.DeltaLog != "" {
		log, err = deltalog.Open(deltalog.Config{Dir: cfg.Store.DeltaLog, Logger: logger})
		if err != nil {
			return err
		}
		defer log.Close()
	} else {
		logger.Warn("no delta log configured; peers cannot catch up from this peer")
	}

	capabilities, err := cfg.CapabilitySet()
	if err != nil {
		return err
	}

	engine, err := mesh.NewEngine(mesh.Config{
		Store:              s,
		Log:                log,
		Capabilities:       capabilities,
		Logger:             logger,
		QueueSize:          cfg.Sync.QueueSize,
		NegotiationTimeout: cfg.Sync.NegotiationTimeout,
		CloseOnTimeout:     cfg.Sync.CloseOnTimeout,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	listeners := make([]transport.Listener, 0, len(cfg.Listen))
	defer func() {
		for _, l := range listeners {
			l.Close()
		}
	}()
	for _, lc := range cfg.Listen {
		listener, err := openListener(lc)
		if err != nil {
			return err
		}
		listeners = append(listeners, listener)
		logger.Info("listening", "transport", lc.Transport, "address", listener.Address())
		go acceptLoop(ctx, engine, listener, logger)
	}

	for _, pc := range cfg.Peers {
		go connectPeer(ctx, engine, pc, logger)
	}

	logger.Info("peer running", "origin", engine.Origin())
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func openListener(lc config.ListenConfig) (transport.Listener, error) {
	switch lc.Transport {
	case "tcp":
		return transport.NewTCPListener(lc.Address)
	case "websocket":
		return transport.NewWebSocketListener(lc.Address)
	default:
		return nil, fmt.Errorf("unknown transport %q", lc.Transport)
	}
}

func dialerFor(transportName string) (transport.Dialer, error) {
	switch transportName {
	case "tcp":
		return &transport.TCPDialer{}, nil
	case "websocket":
		return &transport.WebSocketDialer{}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transportName)
	}
}

// acceptLoop hands every accepted connection to the engine. Handshake
// failures drop the one connection, not the listener.
func acceptLoop(ctx context.Context, engine *mesh.Engine, listener transport.Listener, logger *slog.Logger) {
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", "address", listener.Address(), "error", err)
			continue
		}
		go func() {
			if _, err := engine.Accept(ctx, conn); err != nil {
				logger.Warn("inbound session failed", "error", err)
			}
		}()
	}
}

// connectPeer dials one configured peer. A failed dial is logged, not
// fatal: the rest of the mesh keeps running and the peer can dial us.
func connectPeer(ctx context.Context, engine *mesh.Engine, pc config.PeerConfig, logger *slog.Logger) {
	dialer, err := dialerFor(pc.Transport)
	if err != nil {
		logger.Warn("skipping peer", "address", pc.Address, "error", err)
		return
	}
	conn, err := dialer.DialContext(ctx, pc.Address)
	if err != nil {
		logger.Warn("dialing peer failed", "transport", pc.Transport, "address", pc.Address, "error", err)
		return
	}
	if _, err := engine.Connect(ctx, conn); err != nil {
		logger.Warn("peer session failed", "address", pc.Address, "error", err)
		return
	}
	logger.Info("connected to peer", "transport", pc.Transport, "address", pc.Address)
}
