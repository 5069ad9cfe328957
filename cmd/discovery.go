// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/smartaudio/internal/discovery"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

var (
	discoveryTimeout time.Duration
	discoveryMDNS    bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Find VTXs on serial ports or bridges on the network",
	Long: `Find SmartAudio devices.

Modes:
  Serial (default): Send GET_SETTINGS on every serial port and list the ports
                    that answered, with the decoded settings.

  mDNS (--mdns):    Browse the local network for WebSocket UART bridges
                    advertising _smartaudio._tcp and print their URLs.

Examples:
  # Probe all local serial ports
  smartaudio discovery

  # Find network bridges
  smartaudio discovery --mdns

Exit codes:
  0 - Discovery successful (at least one device found)
  1 - Discovery failed (no devices or timeout)
  2 - Discovery error`,
	Args: cobra.NoArgs,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().DurationVar(&discoveryTimeout, "browse-timeout", discovery.DefaultBrowseTimeout, "How long to listen for mDNS bridges")
	discoveryCmd.Flags().BoolVar(&discoveryMDNS, "mdns", false, "Browse for WebSocket bridges instead of probing serial ports")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	if discoveryMDNS {
		return runBridgeDiscovery(cmd)
	}

	fmt.Printf("SmartAudio - Device Discovery\n")
	fmt.Printf("Mode: serial @ %d baud 8N%d\n\n", cfg.Serial.Baud, cfg.Serial.StopBits)

	prober := discovery.NewProber(serialOpener(cfg.Serial.StopBits), cfg.Serial.Baud)
	prober.Timeout = cfg.Client.Timeout
	prober.Log = logger.Named("discovery")

	results, err := prober.ProbePorts(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Discovery error: %v\n", err)
		os.Exit(2)
	}

	for _, r := range results {
		fmt.Printf("Device found:\n")
		fmt.Printf("  Port: %s\n", r.Port)
		fmt.Print(smartaudio.FormatResponseDetails(r.Settings))
		fmt.Println()
	}

	fmt.Printf("--- Discovery summary ---\n")
	fmt.Printf("Devices found: %d\n", len(results))
	if len(results) == 0 {
		fmt.Printf("No devices discovered. Check wiring, baud rate and VTX power.\n")
		os.Exit(1)
	}
	return nil
}

func runBridgeDiscovery(cmd *cobra.Command) error {
	fmt.Printf("SmartAudio - Bridge Discovery\n")
	fmt.Printf("Service: %s.%s\n", discovery.ServiceType, discovery.ServiceDomain)
	fmt.Printf("Timeout: %s\n\n", discoveryTimeout)

	bridges, err := discovery.BrowseBridges(cmd.Context(), discoveryTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Discovery error: %v\n", err)
		os.Exit(2)
	}

	for _, b := range bridges {
		fmt.Printf("Bridge found:\n")
		fmt.Printf("  Instance: %s\n", b.Instance)
		fmt.Printf("  Host: %s\n", b.Host)
		fmt.Printf("  URL: %s\n\n", b.URL())
	}

	fmt.Printf("--- Discovery summary ---\n")
	fmt.Printf("Bridges found: %d\n", len(bridges))
	if len(bridges) == 0 {
		os.Exit(1)
	}
	return nil
}
