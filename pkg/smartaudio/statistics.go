// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"fmt"
	"strings"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	CRCErrors       uint64
	FramingErrors   uint64
	DecodeErrors    uint64
	AnomalousValues uint64
	ChannelRange    uint64
	FrequencyRange  uint64
	PowerAnomalies  uint64
	ModeConflicts   uint64

	// Settings responses seen, by protocol version
	SettingsV10 uint64
	SettingsV20 uint64
	SettingsV21 uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a decoded response and its errors
func (s *Statistics) Update(resp Response, decodeErr error, validationErrors []ValidationError) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		switch {
		case IsCRCError(decodeErr):
			s.CRCErrors++
		case IsFramingError(decodeErr):
			s.FramingErrors++
		default:
			s.DecodeErrors++
		}
		return
	}

	if settings, ok := resp.(Settings); ok {
		switch settings.Version {
		case Version10:
			s.SettingsV10++
		case Version20:
			s.SettingsV20++
		case Version21:
			s.SettingsV21++
		}
	}

	if len(validationErrors) == 0 {
		s.ValidFrames++
		return
	}

	s.AnomalousValues++
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyChannelRange:
			s.ChannelRange++
		case AnomalyFrequencyRange:
			s.FrequencyRange++
		case AnomalyPowerLevel, AnomalyPowerTable:
			s.PowerAnomalies++
		case AnomalyModeConflict:
			s.ModeConflicts++
		}
	}
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// Errors returns the number of frames that failed or looked anomalous
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.FramingErrors + s.DecodeErrors + s.AnomalousValues
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	fmt.Fprintf(&sb, "Total Frames:    %8d\n", s.TotalFrames)
	fmt.Fprintf(&sb, "Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames))

	if s.CRCErrors > 0 {
		fmt.Fprintf(&sb, "CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, percent(s.CRCErrors))
	}
	if s.FramingErrors > 0 {
		fmt.Fprintf(&sb, "Framing Errors:  %8d (%.1f%%)\n", s.FramingErrors, percent(s.FramingErrors))
	}
	if s.DecodeErrors > 0 {
		fmt.Fprintf(&sb, "Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}
	if s.AnomalousValues > 0 {
		fmt.Fprintf(&sb, "Anomalous Values:%8d (%.1f%%)\n", s.AnomalousValues, percent(s.AnomalousValues))
		if s.ChannelRange > 0 {
			fmt.Fprintf(&sb, "  Channel Range:    %5d\n", s.ChannelRange)
		}
		if s.FrequencyRange > 0 {
			fmt.Fprintf(&sb, "  Frequency Range:  %5d\n", s.FrequencyRange)
		}
		if s.PowerAnomalies > 0 {
			fmt.Fprintf(&sb, "  Power:            %5d\n", s.PowerAnomalies)
		}
		if s.ModeConflicts > 0 {
			fmt.Fprintf(&sb, "  Mode Conflicts:   %5d\n", s.ModeConflicts)
		}
	}
	if n := s.SettingsV10 + s.SettingsV20 + s.SettingsV21; n > 0 {
		fmt.Fprintf(&sb, "Settings (v1.0/v2.0/v2.1): %d/%d/%d\n", s.SettingsV10, s.SettingsV20, s.SettingsV21)
	}

	fmt.Fprintf(&sb, "Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	fmt.Fprintf(&sb, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	sb.WriteString("================================\n")

	return sb.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
