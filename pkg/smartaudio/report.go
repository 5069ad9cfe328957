// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

// SettingsReport is a serializable view of Settings for JSON and YAML output
type SettingsReport struct {
	Version           string            `json:"version" yaml:"version"`
	Channel           uint8             `json:"channel" yaml:"channel"`
	ChannelName       string            `json:"channelName" yaml:"channelName"`
	Frequency         uint16            `json:"frequency" yaml:"frequency"`
	PowerLevel        uint8             `json:"powerLevel" yaml:"powerLevel"`
	Unlocked          bool              `json:"unlocked" yaml:"unlocked"`
	UserFrequencyMode bool              `json:"userFrequencyMode" yaml:"userFrequencyMode"`
	PitmodeEnabled    bool              `json:"pitmodeEnabled" yaml:"pitmodeEnabled"`
	PitmodeInRange    bool              `json:"pitmodeInRange" yaml:"pitmodeInRange"`
	PitmodeOutRange   bool              `json:"pitmodeOutRange" yaml:"pitmodeOutRange"`
	Power             *PowerTableReport `json:"power,omitempty" yaml:"power,omitempty"`
	Anomalies         []string          `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
}

// PowerTableReport is the serializable view of PowerSettings. Levels holds
// only the advertised entries.
type PowerTableReport struct {
	CurrentDBm uint8   `json:"currentDbm" yaml:"currentDbm"`
	Levels     []int   `json:"levels" yaml:"levels"`
}

// NewSettingsReport builds a report for s, including any validation anomalies
func NewSettingsReport(s Settings) SettingsReport {
	r := SettingsReport{
		Version:           s.Version.String(),
		Channel:           s.Channel,
		ChannelName:       ChannelName(s.Channel),
		Frequency:         s.Frequency,
		PowerLevel:        s.PowerLevel,
		Unlocked:          s.Unlocked,
		UserFrequencyMode: s.UserFrequencyMode,
		PitmodeEnabled:    s.PitmodeEnabled,
		PitmodeInRange:    s.PitmodeInRangeActive,
		PitmodeOutRange:   s.PitmodeOutRangeActive,
	}

	if ps := s.PowerSettings; ps != nil {
		n := min(int(ps.NumPowerLevels), len(ps.DBmLevels))
		r.Power = &PowerTableReport{CurrentDBm: ps.CurrentPower, Levels: make([]int, n)}
		for i, l := range ps.DBmLevels[:n] {
			r.Power.Levels[i] = int(l)
		}
	}

	for _, v := range ValidateResponse(s) {
		r.Anomalies = append(r.Anomalies, v.Message)
	}
	return r
}
