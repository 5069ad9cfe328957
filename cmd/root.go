// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/config"
	"github.com/Thermoquad/smartaudio/internal/logging"
	"github.com/Thermoquad/smartaudio/internal/vtx"
)

var (
	cfgFile     string
	capturePath string

	// Populated by PersistentPreRunE before any subcommand runs
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "smartaudio",
	Short: "SmartAudio VTX Protocol Analyzer",
	Long: `smartaudio - A CLI tool for monitoring, analyzing and controlling video
transmitters over the SmartAudio protocol.

Provides commands for raw frame logging, error detection, VTX control, a device
emulator, a WebSocket bridge and an HTTP control API.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 4800] [--stop-bits 2]
  WebSocket: --url ws://host/path [--username user]

Settings can also come from smartaudio.yaml, --config or SMARTAUDIO_* environment
variables. Flags win over environment, which wins over the config file.

For WebSocket authentication, the password is read from the SMARTAUDIO_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVarP(&cfgFile, "config", "c", "", "Config file (default ./smartaudio.yaml)")

	// Serial connection flags
	pf.StringP("port", "p", "", "Serial port device")
	pf.IntP("baud", "b", 4800, "Baud rate (serial only)")
	pf.Int("stop-bits", 2, "Stop bits, 1 or 2 (serial only)")

	// WebSocket connection flags
	pf.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	pf.String("username", "", "Username for HTTP Basic auth")
	pf.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Request/response tuning
	pf.Duration("timeout", vtx.DefaultTimeout, "Response timeout per attempt")
	pf.Int("retries", vtx.DefaultRetries, "Retries after a timeout")
	pf.Bool("wake", true, "Send a 0x00 wake byte before each command")

	// Logging
	pf.String("log-level", "", "Log level: debug, info, warn, error (default silent)")
	pf.String("log-file", "", "Also write JSON logs to this file, rotated")

	pf.StringVar(&capturePath, "capture", "", "Record all traffic to a capture file")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	cfg = c

	l, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger = l
	return nil
}

// clientOptions returns the vtx client options derived from the loaded config
func clientOptions() []vtx.Option {
	return []vtx.Option{
		vtx.WithLogger(logger.Named("client")),
		vtx.WithTimeout(cfg.Client.Timeout),
		vtx.WithMinInterval(cfg.Client.MinInterval),
		vtx.WithRetries(cfg.Client.Retries),
		vtx.WithWakeByte(cfg.Client.WakeByte),
	}
}

// requestTimeout bounds a single command including its retries
func requestTimeout() time.Duration {
	return cfg.Client.Timeout*time.Duration(cfg.Client.Retries+1) + cfg.Client.MinInterval*time.Duration(cfg.Client.Retries+1) + time.Second
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
