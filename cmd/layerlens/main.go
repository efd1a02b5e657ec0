// Package main provides the entry point for the layerlens CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/layerlens/layerlens/cmd/layerlens/commands"
	"github.com/layerlens/layerlens/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "layerlens",
		Short: "Layerlens - test layer classification and coverage analysis",
		Long: `Layerlens discovers a repository's automated tests, classifies them
into unit, integration, and e2e layers, detects cross-layer duplicate
test names, and measures per-layer line coverage.

Commands:
  run       Analyze a repository's test layers
  mcp       Start an MCP server exposing analysis as tools`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	// Add commands.
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
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
			fmt.Fprintf(os.Stdout, "layerlens %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
