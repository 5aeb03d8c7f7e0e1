// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/tagmesh/tagmesh/cmd/tagmesh/cli"
	"github.com/tagmesh/tagmesh/lib/media"
	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/store"
)

func nodeCommand() *cli.Command {
	return &cli.Command{
		Name:    "node",
		Summary: "Create and inspect nodes",
		Subcommands: []*cli.Command{
			nodeCreateCommand(),
			nodeListCommand(),
			nodeShowCommand(),
		},
	}
}

func nodeCreateCommand() *cli.Command {
	var flags storeFlags
	var contentPath string
	var mediaDir string

	return &cli.Command{
		Name:    "create",
		Summary: "Create a node, optionally attached to file content",
		Description: `Create a node and print its ID.

With --content, the file is hashed and the node records its content
ref; core:name and core:type are seeded from the filename. With
--media-dir, the file's bytes are also copied into a content-addressed
blob store so other tools can retrieve them by ref.`,
		Usage: "tagmesh node create [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("node create", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&contentPath, "content", "", "file to attach as node content")
			flagSet.StringVar(&mediaDir, "media-dir", "", "blob store directory to copy the content into")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("node create takes no positional arguments")
			}
			s, cfg, err := flags.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := context.Background()

			var contentRef string
			if contentPath != "" {
				contentRef, err = hashContent(ctx, contentPath, mediaDir)
				if err != nil {
					return err
				}
			}

			node, err := s.CreateNode(ctx, contentRef)
			if err != nil {
				return err
			}

			if contentPath != "" {
				log, err := openLog(cfg)
				if err != nil {
					return err
				}
				if log != nil {
					defer log.Close()
				}
				base := filepath.Base(contentPath)
				seeds := []struct {
					ref   tag.TagRef
					value tag.Value
				}{
					{tag.TagRef{Namespace: tag.CoreNamespace, Key: "name"}, tag.StringValue(base)},
					{tag.TagRef{Namespace: tag.CoreNamespace, Key: "type"}, tag.StringValue(string(media.DetectType(base)))},
				}
				for _, seed := range seeds {
					d, err := s.PutLocal(ctx, node.ID, seed.ref, seed.value)
					if err != nil {
						return err
					}
					journal(log, d)
				}
			}

			fmt.Println(node.ID)
			return nil
		},
	}
}

// hashContent computes the file's content ref, copying the bytes into
// a blob store when mediaDir is set.
func hashContent(ctx context.Context, path, mediaDir string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if mediaDir != "" {
		blobs, err := media.NewDirStore(media.DirStoreConfig{Dir: mediaDir})
		if err != nil {
			return "", err
		}
		ref, _, err := blobs.Put(ctx, f)
		if err != nil {
			return "", err
		}
		return ref.String(), nil
	}

	ref, _, err := media.HashReader(f)
	if err != nil {
		return "", err
	}
	return ref.String(), nil
}

func nodeListCommand() *cli.Command {
	var flags storeFlags

	return &cli.Command{
		Name:    "list",
		Summary: "List all nodes",
		Usage:   "tagmesh node list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("node list", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			s, _, err := flags.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := context.Background()

			ids, err := s.Nodes(ctx)
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

// resolvedName returns the node's resolved core:name, or "".
func resolvedName(ctx context.Context, s store.Store, id tag.NodeID) string {
	resolved, err := s.Resolve(ctx, id, nil)
	if err != nil {
		return ""
	}
	for _, t := range resolved {
		if t.Ref() == store.NameKey {
			return t.Value.String()
		}
	}
	return ""
}

func nodeShowCommand() *cli.Command {
	var flags storeFlags
	var allOrigins bool

	return &cli.Command{
		Name:    "show",
		Summary: "Show one node's content ref and tags",
		Description: `Show a node.

The default view is resolved: one winning assertion per tag. With
--all-origins, every origin's assertion is listed.`,
		Usage: "tagmesh node show <node-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("node show", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&allOrigins, "all-origins", false, "show every origin's assertions")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("node show takes exactly one node ID")
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

			node, err := s.Node(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("node    %s\n", node.ID)
			if node.Content != "" {
				fmt.Printf("content %s\n", node.Content)
			}

			if allOrigins {
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
