// Command reconcile drives a reconciler.Reconciler through a YAML-described
// scenario against the in-memory reference host adapter, either once
// ("run"), continuously on file change ("watch"), or repeatedly for timing
// ("bench") — grounded on cmd/vango/main.go's cobra root-command-plus-
// subcommands shape.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay and inspect reconciler scenarios",
		Long: `reconcile drives the fiber reconciler through a scripted sequence of
UpdateContainer calls against an in-memory host adapter, for manual testing
and for benchmarking lane scheduling behavior outside of a full host.`,
		Version: fmt.Sprintf("%s (%s)", version, commit),
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newBenchCommand())
	rootCmd.AddCommand(newDashboardCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
