// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"fmt"
	"strings"
	"time"
)

// FormatResponse formats a response into a human-readable string with a timestamp header
func FormatResponse(r Response, timestamp time.Time) string {
	name := FormatResponseName(r.ResponseCode())
	result := fmt.Sprintf("[%s] %s (0x%02X)\n", timestamp.Format("15:04:05.000"), name, r.ResponseCode())
	return result + FormatResponseDetails(r)
}

// FormatResponseName returns the human-readable name for a response code
func FormatResponseName(code uint8) string {
	switch code {
	case RespGetSettingsV10:
		return "SETTINGS_V1.0"
	case RespGetSettingsV20:
		return "SETTINGS_V2.0"
	case RespGetSettingsV21:
		return "SETTINGS_V2.1"
	case RespSetPower:
		return "SET_POWER"
	case RespSetChannel:
		return "SET_CHANNEL"
	case RespSetFrequency:
		return "SET_FREQUENCY"
	case RespSetMode:
		return "SET_MODE"
	default:
		return "UNKNOWN"
	}
}

// FormatCommandName returns the human-readable name for a command code
func FormatCommandName(code uint8) string {
	switch code {
	case CmdGetSettings:
		return "GET_SETTINGS"
	case CmdSetPower:
		return "SET_POWER"
	case CmdSetChannel:
		return "SET_CHANNEL"
	case CmdSetFrequency:
		return "SET_FREQUENCY"
	case CmdSetMode:
		return "SET_MODE"
	default:
		return "UNKNOWN"
	}
}

// FormatFrequency formats a frequency with its matching channel, if any
func FormatFrequency(freq uint16) string {
	if ch, ok := FrequencyChannel(freq); ok {
		return fmt.Sprintf("%d MHz (%s)", freq, ChannelName(ch))
	}
	return fmt.Sprintf("%d MHz", freq)
}

// FormatResponseDetails formats the fields of a response, one per line
func FormatResponseDetails(r Response) string {
	var sb strings.Builder

	switch r := r.(type) {
	case Settings:
		fmt.Fprintf(&sb, "  Version:   %s\n", r.Version)
		fmt.Fprintf(&sb, "  Channel:   %d (%s)\n", r.Channel, ChannelName(r.Channel))
		fmt.Fprintf(&sb, "  Frequency: %s\n", FormatFrequency(r.Frequency))
		fmt.Fprintf(&sb, "  Power:     level %d\n", r.PowerLevel)
		fmt.Fprintf(&sb, "  Mode:      %s\n", formatSettingsFlags(r))
		if ps := r.PowerSettings; ps != nil {
			fmt.Fprintf(&sb, "  Output:    %d dBm (%d levels: %d/%d/%d/%d dBm)\n",
				ps.CurrentPower, ps.NumPowerLevels,
				ps.DBmLevels[0], ps.DBmLevels[1], ps.DBmLevels[2], ps.DBmLevels[3])
		}
	case SetPowerResponse:
		fmt.Fprintf(&sb, "  Power: %d\n", r.Power)
	case SetChannelResponse:
		fmt.Fprintf(&sb, "  Channel: %d (%s)\n", r.Channel, ChannelName(r.Channel))
	case SetFrequencyResponse:
		fmt.Fprintf(&sb, "  Frequency: %s\n", FormatFrequency(r.Frequency))
	case SetModeResponse:
		fmt.Fprintf(&sb, "  Mode: %s\n", formatModeFlags(SetModeCommand(r)))
	}

	return sb.String()
}

// FormatCommand formats a command into a single human-readable line
func FormatCommand(c Command) string {
	name := FormatCommandName(c.Code())
	switch c := c.(type) {
	case SetPowerCommand:
		if c.Power.DBm {
			return fmt.Sprintf("%s %d dBm", name, c.Power.Value)
		}
		return fmt.Sprintf("%s level %d", name, c.Power.Value)
	case SetChannelCommand:
		return fmt.Sprintf("%s %d (%s)", name, c.Channel, ChannelName(c.Channel))
	case SetFrequencyCommand:
		return fmt.Sprintf("%s %s", name, FormatFrequency(c.Frequency))
	case SetModeCommand:
		return fmt.Sprintf("%s %s", name, formatModeFlags(c))
	default:
		return name
	}
}

// FormatRawFrame formats the bytes of a frame as a hex dump
func FormatRawFrame(f *RawFrame) string {
	return FormatHex(f.Bytes())
}

// FormatHex formats bytes as space separated hex pairs
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

func formatSettingsFlags(s Settings) string {
	var flags []string
	if s.Unlocked {
		flags = append(flags, "unlocked")
	} else {
		flags = append(flags, "locked")
	}
	if s.UserFrequencyMode {
		flags = append(flags, "user-frequency")
	}
	if s.PitmodeEnabled {
		flags = append(flags, "pitmode")
	}
	if s.PitmodeInRangeActive {
		flags = append(flags, "pit-in-range")
	}
	if s.PitmodeOutRangeActive {
		flags = append(flags, "pit-out-range")
	}
	return strings.Join(flags, ", ")
}

func formatModeFlags(c SetModeCommand) string {
	flags := []string{}
	if c.PitmodeInRangeActive {
		flags = append(flags, "pit-in-range")
	}
	if c.PitmodeOutRangeActive {
		flags = append(flags, "pit-out-range")
	}
	if c.PitmodeEnabled {
		flags = append(flags, "pitmode")
	}
	if c.Unlocked {
		flags = append(flags, "unlocked")
	}
	if len(flags) == 0 {
		return "none"
	}
	return strings.Join(flags, ", ")
}
