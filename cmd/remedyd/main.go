// Remedyd is the autonomous remediation daemon.
//
// It observes a target project through read-only collectors, turns the
// observations into ranked remediation decisions, applies the approved ones
// under snapshot/rollback transactions, and records every outcome for
// future ranking.
//
// Usage:
//
//	# Start the daemon and run a remediation loop
//	remedyd run --config remedyd.yaml
//
//	# Show version information
//	remedyd version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "remedyd",
	Short:   "Autonomous remediation daemon",
	Long:    "remedyd watches a target project, diagnoses issues, and remediates them under snapshot/rollback transactions with tiered approval gates.",
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the daemon and begin a remediation run",
	RunE:  runDaemon,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("remedyd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config file (YAML); env vars with prefix REMEDYD_ override")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
