package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/nobletooth/doclist/pkg/docstore"
	"github.com/nobletooth/doclist/pkg/linkedlist"
	"github.com/nobletooth/doclist/pkg/scan"
	"github.com/spf13/cobra"
)

// errListBroken makes `check` exit with a failure when a list has violations.
var errListBroken = errors.New("list has structural violations")

// mutationResult is the output of the commands changing a list.
type mutationResult struct {
	OK   bool                `yaml:"ok"`
	Node *linkedlist.NodeRef `yaml:"node,omitempty"`
}

// nodeArg builds a node from its group and data id arguments.
func nodeArg(nodeType, dataID string) linkedlist.NodeRef {
	return linkedlist.NodeRef{Type: linkedlist.NodeType(nodeType), DataID: dataID}
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init <listId>",
		Short: "Creates an owning document holding an empty list.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b *backend) error {
				if err := b.inserter.InsertOne(cmd.Context(), b.layout.NewDocument(args[0])); err != nil {
					if errors.Is(err, docstore.ErrDuplicateID) {
						return fmt.Errorf("list %s already exists", args[0])
					}
					return err
				}
				header, err := b.list.ReadHeader(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd, header)
			})
		},
	}
}

func newPushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "push <listId> <type> [dataId]",
		Short: "Appends a node after the tail; a random data id is used when none is given.",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataID := uuid.NewString()
			if len(args) == 3 {
				dataID = args[2]
			}
			node := nodeArg(args[1], dataID)
			return withBackend(cmd.Context(), func(b *backend) error {
				inserted, err := b.list.Insert(cmd.Context(), args[0], node)
				if err != nil {
					return err
				}
				return printYAML(cmd, mutationResult{OK: inserted, Node: &node})
			})
		},
	}
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <listId> <type> <dataId>",
		Short: "Unlinks and deletes a node.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			node := nodeArg(args[1], args[2])
			return withBackend(cmd.Context(), func(b *backend) error {
				removed, err := b.list.Remove(cmd.Context(), args[0], node)
				if err != nil {
					return err
				}
				return printYAML(cmd, mutationResult{OK: removed, Node: &node})
			})
		},
	}
}

func newMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move <listId> <type> <dataId>",
		Short: "Moves a node to the tail.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			node := nodeArg(args[1], args[2])
			return withBackend(cmd.Context(), func(b *backend) error {
				moved, err := b.list.MoveToTail(cmd.Context(), args[0], node)
				if err != nil {
					return err
				}
				return printYAML(cmd, mutationResult{OK: moved, Node: &node})
			})
		},
	}
}

func newPopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pop <listId>",
		Short: "Removes the head.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b *backend) error {
				popped, err := b.list.PopHead(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd, mutationResult{OK: popped})
			})
		},
	}
}

func newHeadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "head <listId>",
		Short: "Prints the head and the length.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b *backend) error {
				head, length, err := b.list.Head(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd, struct {
					Head   *linkedlist.NodeRef `yaml:"head"`
					Length int64               `yaml:"length"`
				}{Head: head, Length: length})
			})
		},
	}
}

func newTailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tail <listId>",
		Short: "Prints the tail.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b *backend) error {
				tail, err := b.list.Tail(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd, struct {
					Tail *linkedlist.NodeRef `yaml:"tail"`
				}{Tail: tail})
			})
		},
	}
}

func newFindCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "find <listId> <type> <dataId>",
		Short: "Prints a node and the list length.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b *backend) error {
				view, found, err := b.list.Find(cmd.Context(), args[0], nodeArg(args[1], args[2]))
				if err != nil {
					return err
				}
				if !found {
					return printYAML(cmd, struct {
						Found bool `yaml:"found"`
					}{})
				}
				return printYAML(cmd, struct {
					Found bool                `yaml:"found"`
					Node  linkedlist.NodeView `yaml:"node"`
				}{Found: true, Node: view})
			})
		},
	}
}

func newWalkCommand() *cobra.Command {
	var (
		reverse bool
		match   string
	)
	walkCmd := &cobra.Command{
		Use:   "walk <listId>",
		Short: "Prints the nodes in list order.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b *backend) error {
				snapshot, err := b.list.Snapshot(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				direction := linkedlist.Forward
				if reverse {
					direction = linkedlist.Backward
				}
				matched, err := scan.MatchGlob(match, func(record linkedlist.NodeRecord) string {
					return record.DataID
				}, snapshot.Walk(direction))
				if err != nil {
					return err
				}
				records := slices.Collect(matched)
				if records == nil {
					records = []linkedlist.NodeRecord{}
				}
				return printYAML(cmd, records)
			})
		},
	}
	walkCmd.Flags().BoolVar(&reverse, "reverse", false, "Walk from the tail along prev links.")
	walkCmd.Flags().StringVar(&match, "match", "", "Only print the nodes whose data id matches this glob pattern.")
	return walkCmd
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <listId>",
		Short: "Verifies the structure of a list; exits with a failure when it is broken.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b *backend) error {
				snapshot, err := b.list.Snapshot(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				violations := snapshot.Check()
				if violations == nil {
					violations = []linkedlist.Violation{}
				}
				if err := printYAML(cmd, struct {
					Header     linkedlist.Header      `yaml:"header"`
					Records    int                    `yaml:"records"`
					Violations []linkedlist.Violation `yaml:"violations"`
				}{Header: snapshot.Header, Records: len(snapshot.Records), Violations: violations}); err != nil {
					return err
				}
				if len(violations) > 0 {
					return fmt.Errorf("%w: %s has %d", errListBroken, args[0], len(violations))
				}
				return nil
			})
		},
	}
}
