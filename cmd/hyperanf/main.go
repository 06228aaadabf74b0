// Package main provides the entry point for the hyperanf CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/hyperanf/cmd/hyperanf/commands"
	"github.com/Sumatoshi-tech/hyperanf/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hyperanf",
		Short: "HyperANF - approximate neighbourhood function estimation",
		Long: `Hyperanf estimates, for every node of a graph, the number of nodes
reachable within t hops for growing t, using HyperLogLog sketches
propagated along edges until a fixed point.

Commands:
  run       Estimate the neighbourhood function of an edge list
  plot      Render the neighbourhood function growth curve`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewPlotCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "hyperanf %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
