// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "encoding/binary"

// CommandParser assembles host to VTX command frames one byte at a time.
// It is the VTX side counterpart of Parser and follows the same resync rules.
// The zero value is ready to use.
type CommandParser struct {
	asm assembler
}

// NewCommandParser creates a new command parser
func NewCommandParser() *CommandParser {
	return &CommandParser{}
}

// Reset drops any partially assembled frame
func (p *CommandParser) Reset() {
	p.asm.reset()
}

// State returns the current parser state
func (p *CommandParser) State() State {
	return p.asm.state
}

// PushByteRaw processes a single byte and returns the completed command frame, if any
func (p *CommandParser) PushByteRaw(b byte) (RawFrame, bool, error) {
	return p.asm.push(b, &commandFraming)
}

// PushByte pushes a byte and decodes the completed command frame, if any.
// Returns a nil Command and nil error while the frame is incomplete.
func (p *CommandParser) PushByte(b byte) (Command, error) {
	frame, ok, err := p.PushByteRaw(b)
	if err != nil || !ok {
		return nil, err
	}
	return ParseCommand(&frame)
}

// ParseCommand decodes a command frame into a typed command
func ParseCommand(f *RawFrame) (Command, error) {
	cmd := f.Command()
	payload := f.Payload()

	need := 1
	switch cmd {
	case CmdGetSettings:
		return GetSettingsCommand{}, nil
	case CmdSetFrequency:
		need = 2
	case CmdSetPower, CmdSetChannel, CmdSetMode:
	default:
		return nil, &UnknownCommandError{Command: cmd}
	}
	if len(payload) < need {
		return nil, payloadTooShort(cmd, len(payload), need)
	}

	switch cmd {
	case CmdSetPower:
		return SetPowerCommand{Power: ParsePower(payload[0])}, nil
	case CmdSetChannel:
		return SetChannelCommand{Channel: payload[0]}, nil
	case CmdSetFrequency:
		return SetFrequencyCommand{Frequency: binary.BigEndian.Uint16(payload[0:2])}, nil
	default:
		mode := payload[0]
		return SetModeCommand{
			PitmodeInRangeActive:  mode&ModeFlagPitmodeInRange != 0,
			PitmodeOutRangeActive: mode&ModeFlagPitmodeOutRange != 0,
			PitmodeEnabled:        mode&ModeFlagPitmodeEnabled != 0,
			Unlocked:              mode&ModeFlagUnlocked != 0,
		}, nil
	}
}
