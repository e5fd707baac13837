// Command agent-engine runs the autonomous software-engineering agent
// execution engine: given an issue/thread, it drives initializeSandbox ->
// planner -> programmer -> checkoutBranchAndCommit -> reviewer to a draft
// pull request. Grounded on the cobra command tree conventions in
// vanducng-goclaw's cmd/root.go and hugo-lorenzo-mato-quorum-ai's
// cmd/quorum/cmd package (SPEC_FULL.md §6 Ambient CLI).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agent-engine",
	Short: "agent-engine — autonomous software-engineering agent execution engine",
	Long:  "agent-engine drives an issue through sandboxed planning, programming and review phases and opens a draft pull request with the result.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "accepted but not read; configuration always comes from the process environment")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("agent-engine dev")
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
