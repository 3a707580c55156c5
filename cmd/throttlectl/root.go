package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "throttlectl",
	Short: "Exercise sliding-window throttlers from a config file",
	Long: `Throttlectl loads throttler definitions from a YAML or TOML file and
drives them with a synthetic workload.

Each throttler admits at most rate_limit calls in any period. Calls past the
limit either wait for the oldest admission to leave the window or, with
on_full: reject, fail immediately.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "throttlers.yaml", "config file path (.yaml, .yml or .toml)")
}
