package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/dgcap/internal/config"
	"firestige.xyz/dgcap/internal/daemon"
	logpkg "firestige.xyz/dgcap/internal/log"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture DGGEN datagrams and report counters",
	Long: `Open every configured receive queue, run one capture worker per queue
and redraw the counters every report.interval. On SIGINT/SIGTERM, or once
every offline queue is exhausted, the workers stop and a final report is
printed together with the hardware counter deltas.

Logs go to stderr; reports go to stdout.

Examples:
  dgcap capture -c /etc/dgcap/config.yml
  DGCAP_LOG_LEVEL=debug dgcap capture -c replay.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := logpkg.InitWriter(cfg.Log, os.Stderr); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return runCapture(cfg, cmd.OutOrStdout())
	},
}

func runCapture(cfg *config.Config, out io.Writer, opts ...daemon.Option) error {
	d := daemon.New(cfg, out, opts...)
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	return d.Run()
}
