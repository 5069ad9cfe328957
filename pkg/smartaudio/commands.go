// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "encoding/binary"

// Command is a host to VTX request. The set of implementations is closed:
// GetSettingsCommand, SetPowerCommand, SetChannelCommand, SetFrequencyCommand
// and SetModeCommand.
type Command interface {
	// Code returns the command byte
	Code() uint8
	// Size returns the encoded frame size in bytes
	Size() int
	// MarshalTo writes the complete frame into buf and returns the number of
	// bytes written. If buf is too small nothing is written and a
	// *BufferTooSmallError is returned.
	MarshalTo(buf []byte) (int, error)
	isCommand()
}

// Power is a set power argument: a power level index (SmartAudio 1.0/2.0)
// or a dBm value (SmartAudio 2.1)
type Power struct {
	Value uint8
	DBm   bool
}

// PowerLevel returns a power argument selecting a level index
func PowerLevel(level uint8) Power {
	return Power{Value: level}
}

// PowerDBm returns a power argument selecting an output power in dBm
func PowerDBm(dbm uint8) Power {
	return Power{Value: dbm, DBm: true}
}

// ParsePower decodes a set power payload byte
func ParsePower(b uint8) Power {
	if b&PowerDBmFlag != 0 {
		return PowerDBm(b &^ PowerDBmFlag)
	}
	return PowerLevel(b)
}

// Byte returns the wire encoding. dBm values carry PowerDBmFlag in bit 7.
func (p Power) Byte() uint8 {
	if p.DBm {
		return p.Value | PowerDBmFlag
	}
	return p.Value
}

// GetSettingsCommand requests the current VTX settings
type GetSettingsCommand struct{}

// SetPowerCommand sets the output power
type SetPowerCommand struct {
	Power Power
}

// SetChannelCommand selects a channel (band*8 + channel) from the frequency table
type SetChannelCommand struct {
	Channel uint8
}

// SetFrequencyCommand tunes the VTX to a frequency in MHz
type SetFrequencyCommand struct {
	Frequency uint16
}

// SetModeCommand sets the pit mode and lock flags
type SetModeCommand struct {
	PitmodeInRangeActive  bool
	PitmodeOutRangeActive bool
	PitmodeEnabled        bool
	Unlocked              bool
}

func (GetSettingsCommand) Code() uint8  { return CmdGetSettings }
func (SetPowerCommand) Code() uint8     { return CmdSetPower }
func (SetChannelCommand) Code() uint8   { return CmdSetChannel }
func (SetFrequencyCommand) Code() uint8 { return CmdSetFrequency }
func (SetModeCommand) Code() uint8      { return CmdSetMode }

func (GetSettingsCommand) Size() int  { return frameOverhead }
func (SetPowerCommand) Size() int     { return frameOverhead + 1 }
func (SetChannelCommand) Size() int   { return frameOverhead + 1 }
func (SetFrequencyCommand) Size() int { return frameOverhead + 2 }
func (SetModeCommand) Size() int      { return frameOverhead + 1 }

func (GetSettingsCommand) isCommand()  {}
func (SetPowerCommand) isCommand()     {}
func (SetChannelCommand) isCommand()   {}
func (SetFrequencyCommand) isCommand() {}
func (SetModeCommand) isCommand()      {}

func (c GetSettingsCommand) MarshalTo(buf []byte) (int, error) {
	return frameCommand(buf, CmdGetSettings, nil)
}

func (c SetPowerCommand) MarshalTo(buf []byte) (int, error) {
	payload := [1]byte{c.Power.Byte()}
	return frameCommand(buf, CmdSetPower, payload[:])
}

func (c SetChannelCommand) MarshalTo(buf []byte) (int, error) {
	payload := [1]byte{c.Channel}
	return frameCommand(buf, CmdSetChannel, payload[:])
}

func (c SetFrequencyCommand) MarshalTo(buf []byte) (int, error) {
	var payload [2]byte
	binary.BigEndian.PutUint16(payload[:], c.Frequency)
	return frameCommand(buf, CmdSetFrequency, payload[:])
}

func (c SetModeCommand) MarshalTo(buf []byte) (int, error) {
	payload := [1]byte{c.Mode()}
	return frameCommand(buf, CmdSetMode, payload[:])
}

// Mode packs the flags into the set mode payload byte
func (c SetModeCommand) Mode() uint8 {
	var mode uint8
	if c.PitmodeInRangeActive {
		mode |= ModeFlagPitmodeInRange
	}
	if c.PitmodeOutRangeActive {
		mode |= ModeFlagPitmodeOutRange
	}
	if c.PitmodeEnabled {
		mode |= ModeFlagPitmodeEnabled
	}
	if c.Unlocked {
		mode |= ModeFlagUnlocked
	}
	return mode
}

// EncodeCommand returns the wire bytes of a command in a new slice
func EncodeCommand(c Command) ([]byte, error) {
	buf := make([]byte, c.Size())
	n, err := c.MarshalTo(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// frameCommand writes header, command, length, payload and CRC into buf
func frameCommand(buf []byte, code uint8, payload []byte) (int, error) {
	size := frameOverhead + len(payload)
	if len(buf) < size {
		return 0, &BufferTooSmallError{Required: size, Available: len(buf)}
	}

	buf[0] = HeaderByte1
	buf[1] = HeaderByte2
	buf[2] = code
	buf[3] = uint8(len(payload))
	copy(buf[4:], payload)

	// Host frames are checksummed from the first header byte
	buf[size-1] = CalculateCRC(buf[:size-1])
	return size, nil
}
