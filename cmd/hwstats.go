package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/dgcap/internal/config"
	"firestige.xyz/dgcap/internal/daemon"
	"firestige.xyz/dgcap/internal/hwstats"
)

var hwstatsDevice string

var hwstatsCmd = &cobra.Command{
	Use:   "hwstats",
	Short: "Print one snapshot of the TAP hardware counters",
	Long: `Map the TAP register window and print the DGGEN and per-port counters
as YAML. Register values are raw 32-bit counters.

Examples:
  dgcap hwstats
  dgcap hwstats -d /dev/uio1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		layout := daemon.HardwareLayout(cfg.Hardware, cfg.Capture.Ports)
		if hwstatsDevice != "" {
			layout.Device = hwstatsDevice
		}
		r, err := hwstats.NewUIOReader(layout)
		if err != nil {
			return err
		}
		return runHWStats(r, cmd.OutOrStdout())
	},
}

func init() {
	hwstatsCmd.Flags().StringVarP(&hwstatsDevice, "device", "d", "",
		"UIO device overriding hardware.device")
}

func runHWStats(r hwstats.Reader, out io.Writer) error {
	snap, err := r.ReadSnapshot()
	if err != nil {
		return fmt.Errorf("failed to read hardware counters: %w", err)
	}
	enc := yaml.NewEncoder(out)
	defer enc.Close()
	return enc.Encode(snap)
}
