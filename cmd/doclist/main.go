// Runs list operations from the command line against a file or MongoDB backed document store.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nobletooth/doclist/pkg/config"
	"github.com/nobletooth/doclist/pkg/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "doclist",
		Short: "Maintains doubly linked lists stored inside documents.",
		Long: `Doclist keeps a doubly linked list inside one field of an owning document. Nodes of several
groups share one ordering; the list header tracks the head, the tail and the length.

Examples:
  doclist --store_path=lists.json --node_groups=tasks,notes init account-1
  doclist --store_path=lists.json --node_groups=tasks,notes push account-1 tasks
  doclist --store_path=lists.json --node_groups=tasks,notes walk account-1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitFlags(cmd.Flags().Changed); err != nil {
				return err
			}
			utils.InitLogging()
			return nil
		},
	}
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	root.AddCommand(
		newInitCommand(),
		newPushCommand(),
		newRemoveCommand(),
		newMoveCommand(),
		newPopCommand(),
		newHeadCommand(),
		newTailCommand(),
		newFindCommand(),
		newWalkCommand(),
		newCheckCommand(),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the build information.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printYAML(cmd, utils.GetBuildInfo())
		},
	}
}

// printYAML writes `v` to the command output.
func printYAML(cmd *cobra.Command, v any) error {
	encoder := yaml.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return encoder.Close()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("Doclist command failed.", "error", err)
		os.Exit(1)
	}
}
