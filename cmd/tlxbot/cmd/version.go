package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version is the current version of tlxbot, set at build time.
	Version = "0.1.0"
	// GitCommit is the git commit hash, set at build time.
	GitCommit = "dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "tlxbot %s\n", Version)
	fmt.Fprintf(cmd.OutOrStdout(), "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(cmd.OutOrStdout(), "  Go version: %s\n", runtime.Version())
}
