// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/capture"
	"github.com/Thermoquad/smartaudio/internal/monitor"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

var (
	replayRealtime   bool
	replayErrorsOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Decode a traffic capture recorded with --capture",
	Long: `Decode a capture file offline and print the frames it contains.

Received bytes are decoded as responses (and echoed commands), transmitted
bytes as host commands. A statistics summary is printed at the end.

Examples:
  smartaudio get --port /dev/ttyUSB0 --capture session.cbor
  smartaudio replay session.cbor`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Pace output with the recorded timing")
	replayCmd.Flags().BoolVar(&replayErrorsOnly, "errors-only", false, "Only print errors and anomalies")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := capture.NewReader(f)
	if err != nil {
		return err
	}

	h := r.Header()
	fmt.Printf("SmartAudio - Capture Replay\n")
	fmt.Printf("Capture: %s (%s)\n", h.ID, h.Source)
	fmt.Printf("Started: %s\n\n", h.Started.Format(time.RFC3339))

	stats, err := replay(r, os.Stdout)
	fmt.Println()
	fmt.Print(stats.String())
	return err
}

// replay decodes every record of r and writes the events to w
func replay(r *capture.Reader, w io.Writer) (*smartaudio.Statistics, error) {
	stats := smartaudio.NewStatistics()
	rx := monitor.NewDecoder(true)
	tx := smartaudio.NewCommandParser()

	handle := func(e monitor.Event) {
		switch e.Kind {
		case monitor.EventError:
			stats.Update(nil, e.Err, nil)
			fmt.Fprintf(w, "[%s] ERROR %v\n", e.Time.Format("15:04:05.000"), e.Err)
		case monitor.EventResponse:
			stats.Update(e.Response, nil, e.Anomalies)
			if !replayErrorsOnly || len(e.Anomalies) > 0 {
				fmt.Fprint(w, smartaudio.FormatResponse(e.Response, e.Time))
			}
			for _, v := range e.Anomalies {
				fmt.Fprintf(w, "  WARNING:   %s\n", v.Message)
			}
		case monitor.EventCommand:
			if !replayErrorsOnly {
				fmt.Fprintf(w, "[%s] <- %s (echo)\n", e.Time.Format("15:04:05.000"), smartaudio.FormatCommand(e.Command))
			}
		}
	}

	var last time.Time
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		at := rec.Timestamp()
		if replayRealtime && !last.IsZero() {
			time.Sleep(at.Sub(last))
		}
		last = at

		switch rec.Dir {
		case capture.DirRX:
			rx.Feed(rec.Data, at, handle)
		case capture.DirTX:
			for _, b := range rec.Data {
				c, err := tx.PushByte(b)
				if err != nil {
					logger.Debug("undecodable tx bytes", zap.Error(err))
					continue
				}
				if c != nil && !replayErrorsOnly {
					fmt.Fprintf(w, "[%s] -> %s\n", at.Format("15:04:05.000"), smartaudio.FormatCommand(c))
				}
			}
		default:
			logger.Warn("unknown record direction", zap.String("dir", string(rec.Dir)))
		}
	}
}
