// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/tagmesh/tagmesh/cmd/tagmesh/cli"
	"github.com/tagmesh/tagmesh/lib/deltalog"
	"github.com/tagmesh/tagmesh/lib/sealed"
	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/lib/tagdoc"
	"github.com/tagmesh/tagmesh/store"
)

func importCommand() *cli.Command {
	var flags storeFlags
	var nodeFlag string
	var identityPath string

	return &cli.Command{
		Name:    "import",
		Summary: "Import tag documents",
		Description: `Import one or more tag documents.

Each file becomes a new node carrying the document's tags, attributed
to this peer's origin; with --node, every document lands on that
existing node instead. Sealed (age-encrypted) documents are detected
automatically and need --identity to open.

A file that fails to parse is reported and skipped; the remaining
files still import.`,
		Usage: "tagmesh import <file>... [flags]",
		Examples: []cli.Example{
			{Command: "tagmesh import vacation.tags beach.tags"},
			{Command: "tagmesh import --identity key.txt secrets.tags.age"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("import", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&nodeFlag, "node", "", "import onto this existing node instead of creating one per file")
			flagSet.StringVar(&identityPath, "identity", "", "age identity file for sealed documents")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("import takes one or more document files")
			}
			var target tag.NodeID
			if nodeFlag != "" {
				var err error
				target, err = parseNode(nodeFlag)
				if err != nil {
					return err
				}
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

			var identities []age.Identity
			if identityPath != "" {
				identities, err = sealed.LoadIdentities(identityPath)
				if err != nil {
					return err
				}
			}

			ctx := context.Background()
			failed := 0
			for _, path := range args {
				if err := importFile(ctx, s, log, path, target, identities); err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed to import", failed, len(args))
			}
			return nil
		},
	}
}

func importFile(ctx context.Context, s store.Store, log *deltalog.Log, path string, target tag.NodeID, identities []age.Identity) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if sealed.IsSealed(data) {
		if len(identities) == 0 {
			return fmt.Errorf("document is sealed; pass --identity")
		}
		data, err = sealed.Unseal(data, identities)
		if err != nil {
			return err
		}
	}

	origin := s.Origin()
	set, err := tagdoc.Decode(data, origin)
	if err != nil {
		return err
	}
	if set.Len() == 0 {
		fmt.Fprintf(os.Stderr, "%s: no tags, skipping\n", path)
		return nil
	}

	id := target
	if id.IsZero() {
		node, err := s.CreateNode(ctx, "")
		if err != nil {
			return err
		}
		id = node.ID
	}

	clk, err := s.Clock(ctx, id)
	if err != nil {
		return err
	}
	d := tag.Delta{
		Node:     id,
		Origin:   origin,
		Clock:    clk.Get(origin) + 1,
		Inserted: set.All(),
	}
	applied, err := s.ApplyDelta(ctx, d)
	if err != nil {
		return err
	}
	if applied {
		journal(log, d)
	}
	fmt.Printf("%s: %d tags -> %s\n", path, set.Len(), id)
	return nil
}

func exportCommand() *cli.Command {
	var flags storeFlags
	var sealTo []string
	var outputPath string

	return &cli.Command{
		Name:    "export",
		Summary: "Export a node's resolved tags as a document",
		Description: `Export a node's resolved tag view as a tag document on stdout.

The resolved view carries one assertion per tag, so the document
round-trips through import. With --seal-to, the document is
age-encrypted to the given recipient keys.`,
		Usage: "tagmesh export <node-id> [flags]",
		Examples: []cli.Example{
			{Command: "tagmesh export 7c9e6679-7425-40de-944b-e07fc1f90ae7 > vacation.tags"},
			{Command: "tagmesh export --seal-to age1ql3z... 7c9e6679-7425-40de-944b-e07fc1f90ae7"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringArrayVar(&sealTo, "seal-to", nil, "age recipient key to seal the document to (repeatable)")
			flagSet.StringVarP(&outputPath, "output", "o", "", "write to a file instead of stdout")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("export takes exactly one node ID")
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

			resolved, err := s.Resolve(context.Background(), id, nil)
			if err != nil {
				return err
			}
			set := tag.NewTagSet()
			for _, t := range resolved {
				if err := set.Put(t); err != nil {
					return err
				}
			}
			data, err := tagdoc.Encode(set)
			if err != nil {
				return err
			}
			if len(sealTo) > 0 {
				data, err = sealed.Seal(data, sealTo)
				if err != nil {
					return err
				}
			}

			if outputPath != "" {
				return os.WriteFile(outputPath, data, 0o600)
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}
