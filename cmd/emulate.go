// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/smartaudio/internal/vtx"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

var (
	emulateVersion string
	emulateChannel string
	emulateEcho    bool
	emulateLocked  bool
)

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Emulate a SmartAudio VTX on a serial port or bridge",
	Long: `Answer SmartAudio commands like a VTX would.

The emulator keeps channel, frequency, power and mode state and replies to
every valid command on the connection. Useful for exercising flight
controller firmware or this tool's own commands without hardware.

Examples:
  # Emulate a 2.1 device on a USB-UART adapter
  smartaudio emulate --port /dev/ttyUSB1 --vtx-version 2.1

  # Emulate a single-wire line where commands are read back
  smartaudio emulate --port /dev/ttyUSB1 --echo`,
	Args: cobra.NoArgs,
	RunE: runEmulate,
}

func init() {
	rootCmd.AddCommand(emulateCmd)
	emulateCmd.Flags().StringVar(&emulateVersion, "vtx-version", "2.0", "Protocol version to emulate: 1.0, 2.0 or 2.1")
	emulateCmd.Flags().StringVar(&emulateChannel, "channel", "A1", "Initial channel, index or name")
	emulateCmd.Flags().BoolVar(&emulateEcho, "echo", false, "Echo each command back before answering")
	emulateCmd.Flags().BoolVar(&emulateLocked, "locked", false, "Start locked")
}

// parseVersion maps a version string onto a protocol version
func parseVersion(s string) (smartaudio.Version, error) {
	for _, v := range []smartaudio.Version{smartaudio.Version10, smartaudio.Version20, smartaudio.Version21} {
		if v.String() == s {
			return v, nil
		}
	}
	return smartaudio.VersionUnknown, fmt.Errorf("unknown SmartAudio version %q (use 1.0, 2.0 or 2.1)", s)
}

func runEmulate(cmd *cobra.Command, args []string) error {
	version, err := parseVersion(emulateVersion)
	if err != nil {
		return err
	}
	channel, err := parseChannelArg(emulateChannel)
	if err != nil {
		return err
	}
	freq, _ := smartaudio.ChannelFrequency(channel)

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	emu := vtx.NewEmulator(smartaudio.Settings{
		Version:   version,
		Channel:   channel,
		Frequency: freq,
		Unlocked:  !emulateLocked,
	}, vtx.WithEmulatorLogger(logger.Named("emulator")), vtx.WithEcho(emulateEcho))

	fmt.Printf("SmartAudio - VTX Emulator\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Version: %s, channel %s\n", version, smartaudio.FormatFrequency(freq))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = emu.Serve(ctx, conn)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	fmt.Printf("\nFinal state:\n")
	if werr := writeSettings(os.Stdout, emu.Settings(), "text"); werr != nil {
		return werr
	}
	return err
}
