// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/smartaudio/internal/vtx"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

var (
	setVerify bool
	setDBm    bool

	modePitmode  bool
	modeInRange  bool
	modeOutRange bool
	modeUnlocked bool
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change VTX channel, frequency, power or mode",
	Long: `Send a SmartAudio set command and print the acknowledgement.

Examples:
  smartaudio set channel R1 --port /dev/ttyUSB0
  smartaudio set channel 32 --port /dev/ttyUSB0
  smartaudio set frequency 5800 --port /dev/ttyUSB0
  smartaudio set power 2 --port /dev/ttyUSB0
  smartaudio set power 20 --dbm --port /dev/ttyUSB0
  smartaudio set mode --pitmode --unlocked --port /dev/ttyUSB0

With --verify, GET_SETTINGS is sent afterwards and the result printed.`,
}

var setChannelCmd = &cobra.Command{
	Use:   "channel <index|name>",
	Short: "Select a channel by index (0-39) or name (A1-R8)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := parseChannelArg(args[0])
		if err != nil {
			return err
		}
		return runSet(cmd, smartaudio.SetChannelCommand{Channel: ch})
	},
}

var setFrequencyCmd = &cobra.Command{
	Use:   "frequency <MHz>",
	Short: "Tune to a frequency in MHz",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		freq, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid frequency %q: %w", args[0], err)
		}
		return runSet(cmd, smartaudio.SetFrequencyCommand{Frequency: uint16(freq)})
	},
}

var setPowerCmd = &cobra.Command{
	Use:   "power <value>",
	Short: "Set power by level index (0-3) or, with --dbm, in dBm",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parsePowerArg(args[0], setDBm)
		if err != nil {
			return err
		}
		return runSet(cmd, smartaudio.SetPowerCommand{Power: p})
	},
}

var setModeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Set pit mode and lock flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSet(cmd, smartaudio.SetModeCommand{
			PitmodeInRangeActive:  modeInRange,
			PitmodeOutRangeActive: modeOutRange,
			PitmodeEnabled:        modePitmode,
			Unlocked:              modeUnlocked,
		})
	},
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.AddCommand(setChannelCmd, setFrequencyCmd, setPowerCmd, setModeCmd)

	setCmd.PersistentFlags().BoolVar(&setVerify, "verify", false, "Read settings back after the change")
	setPowerCmd.Flags().BoolVar(&setDBm, "dbm", false, "Value is in dBm (SmartAudio 2.1)")

	setModeCmd.Flags().BoolVar(&modePitmode, "pitmode", false, "Enable pit mode")
	setModeCmd.Flags().BoolVar(&modeInRange, "in-range", false, "Pit mode in-range active")
	setModeCmd.Flags().BoolVar(&modeOutRange, "out-range", false, "Pit mode out-range active")
	setModeCmd.Flags().BoolVar(&modeUnlocked, "unlocked", false, "Unlock the VTX")
	setModeCmd.MarkFlagsMutuallyExclusive("in-range", "out-range")
}

// parseChannelArg accepts a channel index or a band/channel name
func parseChannelArg(arg string) (uint8, error) {
	if n, err := strconv.ParseUint(arg, 10, 8); err == nil {
		if int(n) >= smartaudio.NumChannels {
			return 0, fmt.Errorf("channel %d out of range (0-%d)", n, smartaudio.NumChannels-1)
		}
		return uint8(n), nil
	}
	return smartaudio.ChannelFromName(arg)
}

// parsePowerArg parses a power value as a level index or a dBm value
func parsePowerArg(arg string, dbm bool) (smartaudio.Power, error) {
	n, err := strconv.ParseUint(arg, 10, 8)
	if err != nil {
		return smartaudio.Power{}, fmt.Errorf("invalid power %q: %w", arg, err)
	}
	if dbm {
		if n > smartaudio.MaxDBm {
			return smartaudio.Power{}, fmt.Errorf("power %d dBm out of range (max %d)", n, smartaudio.MaxDBm)
		}
		return smartaudio.PowerDBm(uint8(n)), nil
	}
	if n > smartaudio.MaxPowerLevelIndex {
		return smartaudio.Power{}, fmt.Errorf("power level %d out of range (0-%d)", n, smartaudio.MaxPowerLevelIndex)
	}
	return smartaudio.PowerLevel(uint8(n)), nil
}

func runSet(cmd *cobra.Command, c smartaudio.Command) error {
	client, _, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()

	return applyCommand(cmd.Context(), client, c)
}

// applyCommand sends c, prints the acknowledgement and optionally verifies
func applyCommand(ctx context.Context, client *vtx.Client, c smartaudio.Command) error {
	fmt.Printf("Sending %s\n", smartaudio.FormatCommand(c))

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout())
	defer cancel()

	resp, err := client.Do(reqCtx, c)
	if err != nil {
		return err
	}
	code := resp.ResponseCode()
	fmt.Printf("%s (0x%02X)\n%s", smartaudio.FormatResponseName(code), code, smartaudio.FormatResponseDetails(resp))

	if !setVerify {
		return nil
	}

	verifyCtx, cancel := context.WithTimeout(ctx, requestTimeout())
	defer cancel()

	settings, err := client.GetSettings(verifyCtx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	fmt.Println()
	return writeSettings(os.Stdout, settings, "text")
}
