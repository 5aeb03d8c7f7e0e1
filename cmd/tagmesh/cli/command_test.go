// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "tagmesh",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "query",
				Run: func(args []string) error {
					called = "query"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"query"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "query" {
		t.Errorf("dispatched to %q, want %q", called, "query")
	}
}

func TestExecuteNestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "tagmesh",
		Subcommands: []*Command{
			{
				Name: "tag",
				Subcommands: []*Command{
					{
						Name: "set",
						Run: func(args []string) error {
							called = "tag set"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"tag", "set", "extra-arg"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "tag set" {
		t.Errorf("dispatched to %q, want %q", called, "tag set")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra-arg" {
		t.Errorf("args = %v, want [extra-arg]", receivedArgs)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var namespace string
	var positional string

	command := &Command{
		Name: "query",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("query", pflag.ContinueOnError)
			flagSet.StringVar(&namespace, "namespace", "", "filter namespace")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				positional = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--namespace", "photo", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if namespace != "photo" {
		t.Errorf("namespace = %q, want %q", namespace, "photo")
	}
	if positional != "extra" {
		t.Errorf("positional = %q, want %q", positional, "extra")
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	root := &Command{
		Name:        "tagmesh",
		Subcommands: []*Command{{Name: "version", Run: func([]string) error { return nil }}},
	}
	err := root.Execute([]string{"nope"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("Execute = %v, want unknown command error", err)
	}
}

func TestPrintHelpListsSubcommandsAndExamples(t *testing.T) {
	root := &Command{
		Name:    "tagmesh",
		Summary: "tag-based file organization",
		Examples: []Example{
			{Description: "run a peer", Command: "tagmesh serve --config peer.yaml"},
		},
		Subcommands: []*Command{
			{Name: "serve", Summary: "run a sync peer"},
			{Name: "query", Summary: "find nodes by tags"},
		},
	}

	var out bytes.Buffer
	root.PrintHelp(&out)
	help := out.String()
	for _, want := range []string{"serve", "run a sync peer", "query", "tagmesh serve --config peer.yaml"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}
