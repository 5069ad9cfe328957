// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/metrics"
	"github.com/Thermoquad/smartaudio/internal/monitor"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
	showCommands  bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track frame errors, malformed data, and anomalous values with statistics.

This command validates each response and detects:
  - Framing errors (bad header, length outside 3..27)
  - CRC errors and decode failures (unknown responses, short payloads)
  - Anomalous values (channel > 39, frequency outside 5000-6000 MHz,
    power out of range, conflicting pit mode flags)
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	errorDetectionCmd.Flags().BoolVar(&showCommands, "commands", true, "Decode host commands instead of counting them as framing errors")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(conn, connInfo)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(e monitor.Event) {
	timestamp := e.Time.Format("15:04:05.000")
	kind := "DECODE ERROR"
	switch {
	case smartaudio.IsCRCError(e.Err):
		kind = "CRC ERROR"
	case smartaudio.IsFramingError(e.Err):
		kind = "FRAMING ERROR"
	}
	fmt.Printf("[%s] \033[1;31m%s:\033[0m %v\n", timestamp, kind, e.Err)
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// printValidationErrors prints validation errors for a response
func printValidationErrors(e monitor.Event) {
	timestamp := e.Time.Format("15:04:05.000")
	code := e.Response.ResponseCode()

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, smartaudio.FormatResponseName(code), code)
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, v := range e.Anomalies {
		switch v.Type {
		case smartaudio.AnomalyChannelRange:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, v.Message)
			fmt.Printf("    valid channels: 0-%d (A1-R8)\n", smartaudio.NumChannels-1)

		case smartaudio.AnomalyFrequencyRange:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, v.Message)
			fmt.Printf("    valid: %d-%d MHz\n", smartaudio.MinFrequency, smartaudio.MaxFrequency)

		case smartaudio.AnomalyPowerLevel, smartaudio.AnomalyPowerTable:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, v.Message)

		case smartaudio.AnomalyModeConflict:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, v.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, v.Message)
		}
	}

	fmt.Print(smartaudio.FormatResponseDetails(e.Response))
	fmt.Printf("  >>> VALUES REJECTED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(conn Connection, connInfo string) error {
	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	go func() {
		decoder := monitor.NewDecoder(showCommands)
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, ErrConnectionClosed) {
					logger.Warn("read error", zap.Error(err))
				}
				p.Send(connectionClosedMsg{err: err})
				return
			}
			decoder.Feed(buf[:n], time.Now(), func(e monitor.Event) {
				p.Send(lineEventMsg(e))
			})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(conn Connection, connInfo string) error {
	fmt.Printf("SmartAudio - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := monitor.NewDecoder(showCommands)
	stats := smartaudio.NewStatistics()

	var pm *metrics.ProtocolMetrics
	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		pm = metrics.NewProtocolMetrics(reg)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		startMetricsServer(ctx, cfg.Metrics.Addr, metrics.Handler(reg))
	}

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	lineBuf := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				readErr <- err
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			lineBuf <- data
		}
	}()

	handle := func(e monitor.Event) {
		switch e.Kind {
		case monitor.EventSync:
			if e.Skipped > 0 {
				fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", e.Skipped)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}

		case monitor.EventError:
			stats.Update(nil, e.Err, nil)
			pm.Observe(nil, e.Err)
			printDecodeError(e)

		case monitor.EventCommand:
			if showAll {
				fmt.Printf("[%s] -> %s\n\n", e.Time.Format("15:04:05.000"), smartaudio.FormatCommand(e.Command))
			}

		case monitor.EventResponse:
			stats.Update(e.Response, nil, e.Anomalies)
			pm.Observe(e.Response, nil)
			if len(e.Anomalies) > 0 {
				printValidationErrors(e)
			} else if showAll {
				fmt.Print(smartaudio.FormatResponse(e.Response, e.Time))
				fmt.Println()
			}
		}
	}

	for {
		select {
		case data := <-lineBuf:
			pm.AddReceived(len(data))
			decoder.Feed(data, time.Now(), handle)

		case err := <-readErr:
			fmt.Println()
			fmt.Print(stats.String())
			if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
				return nil
			}
			return fmt.Errorf("read: %w", err)

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
