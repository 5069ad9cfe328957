// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package smartaudio implements the SmartAudio video transmitter control protocol.
//
// SmartAudio is a half-duplex UART protocol used by flight controllers to query
// and configure a VTX (channel, frequency, power, pit mode). This package provides
// a byte-at-a-time frame parser, CRC-8/DVB-S2 validation, typed response decoding
// for protocol versions 1.0, 2.0 and 2.1, and command encoding into caller-owned
// buffers. None of the parsing or encoding paths allocate.
package smartaudio

// Protocol framing bytes
const (
	HeaderByte1 = 0xAA
	HeaderByte2 = 0x55
)

// Frame size limits
const (
	MaxFrameSize = 32
	// Accepted range of the length byte in a VTX response: [MinPayloadSize, MaxPayloadSize)
	MinPayloadSize = 3
	MaxPayloadSize = 28

	// header(2) + command + length + crc
	frameOverhead = 5
)

// CRC-8/DVB-S2 configuration
const (
	crcPolynomial = 0xD5
)

// Command codes sent to the VTX (Host → VTX)
const (
	CmdGetSettings  = 0x03
	CmdSetPower     = 0x05
	CmdSetChannel   = 0x07
	CmdSetFrequency = 0x09
	CmdSetMode      = 0x0B
)

// Response codes sent by the VTX (VTX → Host)
//
// The get settings response code doubles as the protocol version.
const (
	RespGetSettingsV10 = 0x01
	RespGetSettingsV20 = 0x09
	RespGetSettingsV21 = 0x11
	RespSetPower       = 0x02
	RespSetChannel     = 0x03
	RespSetFrequency   = 0x04
	RespSetMode        = 0x05
)

// Operation mode bits in the get settings response
const (
	SettingsFlagUserFrequency   = 0x01
	SettingsFlagPitmodeEnabled  = 0x02
	SettingsFlagPitmodeInRange  = 0x04
	SettingsFlagPitmodeOutRange = 0x08
	SettingsFlagUnlocked        = 0x10
)

// Mode bits in the set mode command and response.
// These differ from the get settings bits above.
const (
	ModeFlagPitmodeInRange  = 0x01
	ModeFlagPitmodeOutRange = 0x02
	ModeFlagPitmodeEnabled  = 0x04
	ModeFlagUnlocked        = 0x08
)

// PowerDBmFlag marks a set power payload as a dBm value (SmartAudio 2.1).
const PowerDBmFlag = 0x80

// responseReservedByte trails the payload of set-* responses.
const responseReservedByte = 0x01
