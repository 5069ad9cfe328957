// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "fmt"

// Channel table dimensions. A channel byte is band*ChannelsPerBand + index.
const (
	ChannelsPerBand = 8
	NumBands        = 5
	NumChannels     = NumBands * ChannelsPerBand
)

var bandNames = [NumBands]string{"A", "B", "E", "F", "R"}

// Frequencies in MHz, indexed by channel byte
var channelTable = [NumChannels]uint16{
	5865, 5845, 5825, 5805, 5785, 5765, 5745, 5725, // A
	5733, 5752, 5771, 5790, 5809, 5828, 5847, 5866, // B
	5705, 5685, 5665, 5645, 5885, 5905, 5925, 5945, // E
	5740, 5760, 5780, 5800, 5820, 5840, 5860, 5880, // F (Fatshark)
	5658, 5695, 5732, 5769, 5806, 5843, 5880, 5917, // R (Raceband)
}

// ChannelFrequency returns the frequency of a channel in MHz.
// Returns false if the channel is outside the table.
func ChannelFrequency(channel uint8) (uint16, bool) {
	if int(channel) >= NumChannels {
		return 0, false
	}
	return channelTable[channel], true
}

// ChannelName returns the band/channel name of a channel byte, e.g. "R8"
func ChannelName(channel uint8) string {
	if int(channel) >= NumChannels {
		return fmt.Sprintf("CH%d", channel)
	}
	return fmt.Sprintf("%s%d", bandNames[channel/ChannelsPerBand], channel%ChannelsPerBand+1)
}

// ChannelFromName parses a band/channel name such as "A1" or "r8"
func ChannelFromName(name string) (uint8, error) {
	if len(name) != 2 {
		return 0, fmt.Errorf("invalid channel name %q", name)
	}
	band := -1
	for i, b := range bandNames {
		if name[0] == b[0] || name[0] == b[0]+('a'-'A') {
			band = i
			break
		}
	}
	if band < 0 || name[1] < '1' || name[1] > '8' {
		return 0, fmt.Errorf("invalid channel name %q", name)
	}
	return uint8(band*ChannelsPerBand + int(name[1]-'1')), nil
}

// FrequencyChannel returns the first channel tuned to freq, if any
func FrequencyChannel(freq uint16) (uint8, bool) {
	for ch, f := range channelTable {
		if f == freq {
			return uint8(ch), true
		}
	}
	return 0, false
}
