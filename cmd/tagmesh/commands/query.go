// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/tagmesh/tagmesh/cmd/tagmesh/cli"
	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/store"
)

func queryCommand() *cli.Command {
	var flags storeFlags
	var namespace string
	var nameIs string
	var nameContains string
	var hasTag string
	var limit int
	var offset int

	return &cli.Command{
		Name:    "query",
		Summary: "Find nodes by their tags",
		Description: `Find nodes matching every given filter and print their IDs.

Name filters match the resolved core:name, so every peer with the
same tag state finds the same nodes.`,
		Usage: "tagmesh query [flags]",
		Examples: []cli.Example{
			{
				Description: "All nodes carrying any photo namespace tag",
				Command:     "tagmesh query --namespace photo",
			},
			{
				Description: "Nodes named like a quarterly report, two at a time",
				Command:     "tagmesh query --name-contains report --limit 2",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("query", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&namespace, "namespace", "", "keep nodes with a tag in this namespace")
			flagSet.StringVar(&nameIs, "name-is", "", "keep nodes whose resolved core:name equals this")
			flagSet.StringVar(&nameContains, "name-contains", "", "keep nodes whose resolved core:name contains this")
			flagSet.StringVar(&hasTag, "tag", "", "keep nodes asserting this namespace:key")
			flagSet.IntVar(&limit, "limit", 0, "maximum results (0 is unlimited)")
			flagSet.IntVar(&offset, "offset", 0, "results to skip")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("query takes no positional arguments; use flags")
			}
			q := store.Query{
				Namespace:    namespace,
				NameIs:       nameIs,
				NameContains: nameContains,
				Limit:        limit,
				Offset:       offset,
			}
			if hasTag != "" {
				ref, err := tag.ParseTagRef(hasTag)
				if err != nil {
					return err
				}
				q.HasTag = &ref
			}

			s, _, err := flags.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := context.Background()

			ids, err := s.Find(ctx, q)
			if err != nil {
				return err
			}
			for _, id := range ids {
				name := resolvedName(ctx, s, id)
				if name != "" {
					fmt.Printf("%s  %s\n", id, name)
				} else {
					fmt.Println(id)
				}
			}
			return nil
		},
	}
}
