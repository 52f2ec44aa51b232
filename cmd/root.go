// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dgcap",
	Short: "dgcap - DGGEN datagram capture and TAP counter reconciliation",
	Long: `dgcap receives DGGEN datagrams from a TAP device, checks their sequence,
framing and per-subframe FCS, and reconciles what it saw against the
device's own hardware counters.

Commands:
  capture   run the capture until interrupted or the inputs are exhausted
  hwstats   print one snapshot of the hardware counters
  validate  print the effective configuration`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")

	// Add subcommands
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(hwstatsCmd)
	rootCmd.AddCommand(validateCmd)
}
