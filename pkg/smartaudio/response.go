// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"encoding/binary"
	"fmt"
)

// Version is the SmartAudio protocol version, signalled by the command byte of
// a get settings response
type Version uint8

// Protocol versions
const (
	VersionUnknown Version = iota
	Version10
	Version20
	Version21
)

// VersionFromCode maps a get settings response code to its protocol version
func VersionFromCode(code uint8) Version {
	switch code {
	case RespGetSettingsV10:
		return Version10
	case RespGetSettingsV20:
		return Version20
	case RespGetSettingsV21:
		return Version21
	default:
		return VersionUnknown
	}
}

// ResponseCode returns the get settings response code for the version,
// or 0 for VersionUnknown
func (v Version) ResponseCode() uint8 {
	switch v {
	case Version10:
		return RespGetSettingsV10
	case Version20:
		return RespGetSettingsV20
	case Version21:
		return RespGetSettingsV21
	default:
		return 0
	}
}

func (v Version) String() string {
	switch v {
	case Version10:
		return "1.0"
	case Version20:
		return "2.0"
	case Version21:
		return "2.1"
	default:
		return "unknown"
	}
}

// Response is a decoded VTX response. The set of implementations is closed:
// Settings, SetPowerResponse, SetChannelResponse, SetFrequencyResponse and
// SetModeResponse.
type Response interface {
	// ResponseCode returns the command byte the response travels with
	ResponseCode() uint8
	isResponse()
}

// PowerSettings is the power table reported by SmartAudio 2.1 devices
type PowerSettings struct {
	CurrentPower   uint8 // dBm
	NumPowerLevels uint8
	DBmLevels      [4]uint8
}

// Settings is the decoded get settings response
type Settings struct {
	Version    Version
	Channel    uint8
	PowerLevel uint8
	Frequency  uint16

	Unlocked              bool
	UserFrequencyMode     bool
	PitmodeEnabled        bool
	PitmodeInRangeActive  bool
	PitmodeOutRangeActive bool

	// PowerSettings is only present for Version21
	PowerSettings *PowerSettings
}

// SetPowerResponse acknowledges a set power command. Power holds a level index
// for 2.0 devices and a dBm value for 2.1 devices.
type SetPowerResponse struct {
	Power uint8
}

// SetChannelResponse acknowledges a set channel command
type SetChannelResponse struct {
	Channel uint8
}

// SetFrequencyResponse acknowledges a set frequency command
type SetFrequencyResponse struct {
	Frequency uint16
}

// SetModeResponse acknowledges a set mode command
type SetModeResponse struct {
	PitmodeInRangeActive  bool
	PitmodeOutRangeActive bool
	PitmodeEnabled        bool
	Unlocked              bool
}

func (s Settings) ResponseCode() uint8           { return s.Version.ResponseCode() }
func (SetPowerResponse) ResponseCode() uint8     { return RespSetPower }
func (SetChannelResponse) ResponseCode() uint8   { return RespSetChannel }
func (SetFrequencyResponse) ResponseCode() uint8 { return RespSetFrequency }
func (SetModeResponse) ResponseCode() uint8      { return RespSetMode }
func (Settings) isResponse()                     {}
func (SetPowerResponse) isResponse()             {}
func (SetChannelResponse) isResponse()           {}
func (SetFrequencyResponse) isResponse()         {}
func (SetModeResponse) isResponse()              {}

// ParseResponse decodes a frame into a typed response.
// Unrecognized command bytes yield an *UnknownCommandError.
func ParseResponse(f *RawFrame) (Response, error) {
	cmd := f.Command()
	payload := f.Payload()

	switch cmd {
	case RespGetSettingsV10, RespGetSettingsV20, RespGetSettingsV21:
		return parseSettings(cmd, payload)
	case RespSetPower, RespSetChannel, RespSetMode:
		if len(payload) < 1 {
			return nil, payloadTooShort(cmd, len(payload), 1)
		}
	case RespSetFrequency:
		if len(payload) < 2 {
			return nil, payloadTooShort(cmd, len(payload), 2)
		}
	default:
		return nil, &UnknownCommandError{Command: cmd}
	}

	switch cmd {
	case RespSetPower:
		return SetPowerResponse{Power: payload[0]}, nil
	case RespSetChannel:
		return SetChannelResponse{Channel: payload[0]}, nil
	case RespSetFrequency:
		return SetFrequencyResponse{Frequency: binary.BigEndian.Uint16(payload[0:2])}, nil
	default:
		mode := payload[0]
		return SetModeResponse{
			PitmodeInRangeActive:  mode&ModeFlagPitmodeInRange != 0,
			PitmodeOutRangeActive: mode&ModeFlagPitmodeOutRange != 0,
			PitmodeEnabled:        mode&ModeFlagPitmodeEnabled != 0,
			Unlocked:              mode&ModeFlagUnlocked != 0,
		}, nil
	}
}

func parseSettings(cmd uint8, b []byte) (Response, error) {
	version := VersionFromCode(cmd)

	need := 5
	if version == Version21 {
		need = 11
	}
	if len(b) < need {
		return nil, payloadTooShort(cmd, len(b), need)
	}

	mode := b[2]
	settings := Settings{
		Version:               version,
		Channel:               b[0],
		PowerLevel:            b[1],
		Frequency:             binary.BigEndian.Uint16(b[3:5]),
		UserFrequencyMode:     mode&SettingsFlagUserFrequency != 0,
		PitmodeEnabled:        mode&SettingsFlagPitmodeEnabled != 0,
		PitmodeInRangeActive:  mode&SettingsFlagPitmodeInRange != 0,
		PitmodeOutRangeActive: mode&SettingsFlagPitmodeOutRange != 0,
		Unlocked:              mode&SettingsFlagUnlocked != 0,
	}

	if version == Version21 {
		settings.PowerSettings = &PowerSettings{
			CurrentPower:   b[5],
			NumPowerLevels: b[6],
			DBmLevels:      [4]uint8{b[7], b[8], b[9], b[10]},
		}
	}

	return settings, nil
}

// settingsMode packs the operation mode byte of a get settings response
func settingsMode(s Settings) uint8 {
	var mode uint8
	if s.UserFrequencyMode {
		mode |= SettingsFlagUserFrequency
	}
	if s.PitmodeEnabled {
		mode |= SettingsFlagPitmodeEnabled
	}
	if s.PitmodeInRangeActive {
		mode |= SettingsFlagPitmodeInRange
	}
	if s.PitmodeOutRangeActive {
		mode |= SettingsFlagPitmodeOutRange
	}
	if s.Unlocked {
		mode |= SettingsFlagUnlocked
	}
	return mode
}

func payloadTooShort(cmd uint8, got, need int) error {
	return fmt.Errorf("%w: command 0x%02X payload has %d bytes, need %d", ErrInvalidPayloadLength, cmd, got, need)
}
