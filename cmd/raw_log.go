// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/logging"
	"github.com/Thermoquad/smartaudio/internal/monitor"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

var rawLogCommands bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display SmartAudio frames as they arrive.

Shows each VTX response with timestamp, response type and decoded fields.
Host commands on the same wire are shown too unless --commands=false.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogCommands, "commands", true, "Also decode host commands seen on the line")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("SmartAudio - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := monitor.NewDecoder(rawLogCommands)
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				logger.Info("connection closed")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		logging.LogRawBytes(logger, "rx", buf[:n])
		decoder.Feed(buf[:n], time.Now(), printEvent)
	}
}

// printEvent writes a decoded line event in the raw log format
func printEvent(e monitor.Event) {
	switch e.Kind {
	case monitor.EventSync:
		if e.Skipped > 0 {
			fmt.Printf("[SYNC] Synchronized after skipping %d bytes\n\n", e.Skipped)
		}
	case monitor.EventResponse:
		fmt.Print(smartaudio.FormatResponse(e.Response, e.Time))
	case monitor.EventCommand:
		fmt.Printf("[%s] -> %s\n", e.Time.Format("15:04:05.000"), smartaudio.FormatCommand(e.Command))
	case monitor.EventError:
		fmt.Printf("[ERROR] %v\n", e.Err)
		logger.Debug("decode error", zap.Error(e.Err))
	}
}
