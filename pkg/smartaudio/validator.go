// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "fmt"

// AnomalyType represents different types of response anomalies
type AnomalyType int

const (
	AnomalyChannelRange AnomalyType = iota
	AnomalyFrequencyRange
	AnomalyPowerLevel
	AnomalyPowerTable
	AnomalyModeConflict
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyChannelRange:
		return "channel_range"
	case AnomalyFrequencyRange:
		return "frequency_range"
	case AnomalyPowerLevel:
		return "power_level"
	case AnomalyPowerTable:
		return "power_table"
	case AnomalyModeConflict:
		return "mode_conflict"
	default:
		return "unknown"
	}
}

// Plausibility limits for decoded values
const (
	MinFrequency = 5000 // MHz
	MaxFrequency = 6000 // MHz

	// SmartAudio 2.0 and earlier expose four power levels
	MaxPowerLevelIndex = 3
	MaxDBm             = 40
)

// ValidationError represents a response validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateResponse checks the decoded values of a response for anomalies.
// A response can be structurally valid (good CRC, known command) while still
// carrying values no real transmitter would report.
// Returns a slice of validation errors (empty if the response looks sane)
func ValidateResponse(r Response) []ValidationError {
	errors := []ValidationError{}

	switch r := r.(type) {
	case Settings:
		errors = append(errors, validateSettings(r)...)
	case SetChannelResponse:
		errors = append(errors, validateChannel(r.Channel)...)
	case SetFrequencyResponse:
		errors = append(errors, validateFrequency(r.Frequency)...)
	case SetModeResponse:
		if r.PitmodeInRangeActive && r.PitmodeOutRangeActive {
			errors = append(errors, ValidationError{
				Type:    AnomalyModeConflict,
				Message: "Both pit mode in-range and out-range are active",
			})
		}
	}

	return errors
}

func validateSettings(s Settings) []ValidationError {
	errors := validateChannel(s.Channel)
	errors = append(errors, validateFrequency(s.Frequency)...)

	if s.PitmodeInRangeActive && s.PitmodeOutRangeActive {
		errors = append(errors, ValidationError{
			Type:    AnomalyModeConflict,
			Message: "Both pit mode in-range and out-range are active",
		})
	}

	ps := s.PowerSettings
	if ps == nil {
		if s.PowerLevel > MaxPowerLevelIndex {
			errors = append(errors, ValidationError{
				Type:    AnomalyPowerLevel,
				Message: fmt.Sprintf("Invalid power level=%d (max %d)", s.PowerLevel, MaxPowerLevelIndex),
				Details: map[string]interface{}{"power_level": s.PowerLevel, "max": MaxPowerLevelIndex},
			})
		}
		return errors
	}

	if ps.NumPowerLevels > uint8(len(ps.DBmLevels)) {
		errors = append(errors, ValidationError{
			Type:    AnomalyPowerTable,
			Message: fmt.Sprintf("Invalid power level count=%d (max %d)", ps.NumPowerLevels, len(ps.DBmLevels)),
			Details: map[string]interface{}{"num_power_levels": ps.NumPowerLevels, "max": len(ps.DBmLevels)},
		})
	}
	if ps.CurrentPower > MaxDBm {
		errors = append(errors, ValidationError{
			Type:    AnomalyPowerLevel,
			Message: fmt.Sprintf("Implausible output power=%d dBm (max %d)", ps.CurrentPower, MaxDBm),
			Details: map[string]interface{}{"dbm": ps.CurrentPower, "max": MaxDBm},
		})
	}
	for i := 1; i < len(ps.DBmLevels); i++ {
		if ps.DBmLevels[i] < ps.DBmLevels[i-1] {
			errors = append(errors, ValidationError{
				Type:    AnomalyPowerTable,
				Message: fmt.Sprintf("Power table not ascending at index %d (%d < %d)", i, ps.DBmLevels[i], ps.DBmLevels[i-1]),
				Details: map[string]interface{}{"index": i, "levels": ps.DBmLevels},
			})
			break
		}
	}

	return errors
}

func validateChannel(ch uint8) []ValidationError {
	if int(ch) < NumChannels {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyChannelRange,
		Message: fmt.Sprintf("Invalid channel=%d (max %d)", ch, NumChannels-1),
		Details: map[string]interface{}{"channel": ch, "max": NumChannels - 1},
	}}
}

func validateFrequency(freq uint16) []ValidationError {
	if freq >= MinFrequency && freq <= MaxFrequency {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyFrequencyRange,
		Message: fmt.Sprintf("Frequency %d MHz outside %d-%d MHz", freq, MinFrequency, MaxFrequency),
		Details: map[string]interface{}{"frequency": freq, "min": MinFrequency, "max": MaxFrequency},
	}}
}
