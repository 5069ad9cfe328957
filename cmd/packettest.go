// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/monitor"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

var (
	packetTestWait  int
	packetTestQuery bool
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid SmartAudio response",
	Long: `Wait for a valid SmartAudio response frame on the connection until timeout.

A VTX only talks when spoken to, so by default a GET_SETTINGS command is sent
once per second. Use --query=false to listen passively, e.g. on a line that
a flight controller is already driving.

Invalid bytes are ignored; only a complete frame passing its CRC check counts.

Exit codes:
  0 - Response received before timeout
  1 - Timeout reached without receiving a valid response
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestWait, "wait", 10, "Seconds to wait for a response")
	packetTestCmd.Flags().BoolVar(&packetTestQuery, "query", true, "Send GET_SETTINGS while waiting")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("SmartAudio - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestWait)
	fmt.Printf("Waiting for valid SmartAudio response...\n\n")

	respChan := make(chan monitor.Event, 1)
	errChan := make(chan error, 1)

	go func() {
		decoder := monitor.NewDecoder(false)
		buf := make([]byte, 128)
		found := false
		for !found {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			decoder.Feed(buf[:n], time.Now(), func(e monitor.Event) {
				switch e.Kind {
				case monitor.EventSync:
					if e.Skipped > 0 {
						fmt.Printf("(skipped %d invalid bytes before sync)\n", e.Skipped)
					}
				case monitor.EventResponse:
					if !found {
						found = true
						respChan <- e
					}
				}
			})
		}
	}()

	var query <-chan time.Time
	if packetTestQuery {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		query = ticker.C
		sendGetSettings(conn)
	}

	deadline := time.After(time.Duration(packetTestWait) * time.Second)
	for {
		select {
		case e := <-respChan:
			code := e.Response.ResponseCode()
			fmt.Printf("SUCCESS: Received valid response\n")
			fmt.Printf("  Type: %s (0x%02X)\n", smartaudio.FormatResponseName(code), code)
			fmt.Print(smartaudio.FormatResponseDetails(e.Response))
			os.Exit(0)

		case err := <-errChan:
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)

		case <-query:
			sendGetSettings(conn)

		case <-deadline:
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid response received within %d seconds\n", packetTestWait)
			os.Exit(1)
		}
	}
}

// sendGetSettings writes a wake byte followed by a GET_SETTINGS frame
func sendGetSettings(conn Connection) {
	frame, err := smartaudio.EncodeCommand(smartaudio.GetSettingsCommand{})
	if err != nil {
		return
	}
	if cfg.Client.WakeByte {
		frame = append([]byte{0x00}, frame...)
	}
	if _, err := conn.Write(frame); err != nil {
		logger.Warn("query failed", zap.Error(err))
	}
}
