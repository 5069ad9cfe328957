// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure VTX round trip time with repeated GET_SETTINGS",
	Long: `Send GET_SETTINGS repeatedly and report the round trip time of each request.

This is useful for verifying:
  - The half-duplex line is wired correctly
  - A WebSocket bridge forwards both directions
  - Authentication to the bridge works

Exit codes:
  0 - All requests answered
  1 - One or more requests failed
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of requests to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 500*time.Millisecond, "Delay between requests")
}

func runPing(cmd *cobra.Command, args []string) error {
	client, connInfo, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	fmt.Printf("SmartAudio - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v per request\n", requestTimeout())
	fmt.Printf("Count: %d\n\n", pingCount)

	var ok, failed int
	var total, best, worst time.Duration

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout())
		start := time.Now()
		s, err := client.GetSettings(ctx)
		rtt := time.Since(start)
		cancel()

		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failed++
		} else {
			fmt.Printf("%s %s %s, rtt=%v\n", s.Version, smartaudio.ChannelName(s.Channel),
				smartaudio.FormatFrequency(s.Frequency), rtt.Round(time.Millisecond))
			ok++
			total += rtt
			if best == 0 || rtt < best {
				best = rtt
			}
			worst = max(worst, rtt)
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d requests sent, %d responses received, %.0f%% loss\n",
		pingCount, ok, float64(failed)/float64(max(pingCount, 1))*100)
	if ok > 0 {
		fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
			best.Round(time.Millisecond), (total / time.Duration(ok)).Round(time.Millisecond), worst.Round(time.Millisecond))
	}

	if failed > 0 {
		os.Exit(1)
	}
	return nil
}
