// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/tagmesh/tagmesh/cmd/tagmesh/cli"
	"github.com/tagmesh/tagmesh/lib/tag"
)

func tagCommand() *cli.Command {
	return &cli.Command{
		Name:    "tag",
		Summary: "Set, remove, and list tags",
		Subcommands: []*cli.Command{
			tagSetCommand(),
			tagRemoveCommand(),
			tagListCommand(),
		},
	}
}

func tagSetCommand() *cli.Command {
	var flags storeFlags

	return &cli.Command{
		Name:    "set",
		Summary: "Assert a tag on a node",
		Description: `Assert a tag on a node under this peer's origin.

The value is parsed as JSON when it is valid JSON ('42', 'true',
'["red","blue"]'); otherwise it is taken as a bare string. The edit
overwrites only this origin's earlier assertion for the same tag;
other origins' assertions coexist.`,
		Usage: "tagmesh tag set <node-id> <namespace:key> <value> [flags]",
		Examples: []cli.Example{
			{Command: "tagmesh tag set 7c9e6679-7425-40de-944b-e07fc1f90ae7 project:status active"},
			{Command: "tagmesh tag set 7c9e6679-7425-40de-944b-e07fc1f90ae7 music:bpm 120"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("tag set", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 3 {
				return fmt.Errorf("tag set takes <node-id> <namespace:key> <value>")
			}
			id, err := parseNode(args[0])
			if err != nil {
				return err
			}
			ref, err := tag.ParseTagRef(args[1])
			if err != nil {
				return err
			}
			value, err := parseValue(args[2])
			if err != nil {
				return err
			}

			s, cfg, err := flags.open()
			if err != nil {
				return err
			}
			defer s.Close()
			log, err := openLog(cfg)
			if err != nil {
				return err
			}
			if log != nil {
				defer log.Close()
			}

			d, err := s.PutLocal(context.Background(), id, ref, value)
			if err != nil {
				return err
			}
			journal(log, d)
			return nil
		},
	}
}

func tagRemoveCommand() *cli.Command {
	var flags storeFlags

	return &cli.Command{
		Name:    "rm",
		Summary: "Retract this origin's assertion of a tag",
		Description: `Retract this peer's assertion for a tag.

Only this origin's assertion is removed; other origins' assertions on
the same tag survive. The retraction replicates even when nothing was
asserted locally, so a concurrent remote assertion at an older clock
still loses.`,
		Usage: "tagmesh tag rm <node-id> <namespace:key> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("tag rm", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("tag rm takes <node-id> <namespace:key>")
			}
			id, err := parseNode(args[0])
			if err != nil {
				return err
			}
			ref, err := tag.ParseTagRef(args[1])
			if err != nil {
				return err
			}

			s, cfg, err := flags.open()
			if err != nil {
				return err
			}
			defer s.Close()
			log, err := openLog(cfg)
			if err != nil {
				return err
			}
			if log != nil {
				defer log.Close()
			}

			d, err := s.RemoveLocal(context.Background(), id, ref)
			if err != nil {
				return err
			}
			journal(log, d)
			return nil
		},
	}
}

func tagListCommand() *cli.Command {
	var flags storeFlags
	var allOrigins bool

	return &cli.Command{
		Name:    "list",
		Summary: "List a node's tags",
		Usage:   "tagmesh tag list <node-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("tag list", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&allOrigins, "all-origins", false, "show every origin's assertions")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("tag list takes exactly one node ID")
			}
			id, err := parseNode(args[0])
			if err != nil {
				return err
			}
			s, _, err := flags.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := context.Background()

			if allOrigins {
				node, err := s.Node(ctx, id)
				if err != nil {
					return err
				}
				for _, t := range node.Tags.All() {
					fmt.Printf("%s:%s = %s  @%s\n", t.Namespace, t.Key, t.Value, t.Origin)
				}
				return nil
			}
			resolved, err := s.Resolve(ctx, id, nil)
			if err != nil {
				return err
			}
			for _, t := range resolved {
				fmt.Printf("%s:%s = %s\n", t.Namespace, t.Key, t.Value)
			}
			return nil
		},
	}
}
