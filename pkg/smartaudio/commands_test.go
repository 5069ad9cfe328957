// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

var commandVectors = []struct {
	name     string
	cmd      Command
	expected []byte
}{
	{"get settings", GetSettingsCommand{}, []byte{0xAA, 0x55, 0x03, 0x00, 0x9F}},
	{"set power level 0", SetPowerCommand{Power: PowerLevel(0)}, []byte{0xAA, 0x55, 0x05, 0x01, 0x00, 0x6B}},
	{"set power level 3", SetPowerCommand{Power: PowerLevel(3)}, []byte{0xAA, 0x55, 0x05, 0x01, 0x03, 0xC1}},
	{"set power 14 dBm", SetPowerCommand{Power: PowerDBm(14)}, []byte{0xAA, 0x55, 0x05, 0x01, 0x8E, 0x2C}},
	{"set channel 0", SetChannelCommand{Channel: 0}, []byte{0xAA, 0x55, 0x07, 0x01, 0x00, 0xB8}},
	{"set channel 39", SetChannelCommand{Channel: 39}, []byte{0xAA, 0x55, 0x07, 0x01, 0x27, 0x48}},
	{"set frequency 5865", SetFrequencyCommand{Frequency: 5865}, []byte{0xAA, 0x55, 0x09, 0x02, 0x16, 0xE9, 0xDC}},
	{
		"set mode out-range unlocked",
		SetModeCommand{PitmodeOutRangeActive: true, Unlocked: true},
		[]byte{0xAA, 0x55, 0x0B, 0x01, 0x0A, 0x7B},
	},
	{"set mode none", SetModeCommand{}, []byte{0xAA, 0x55, 0x0B, 0x01, 0x00, 0x2D}},
}

func TestMarshalTo_Vectors(t *testing.T) {
	for _, tt := range commandVectors {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, MaxFrameSize)
			n, err := tt.cmd.MarshalTo(buf)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n != tt.cmd.Size() {
				t.Errorf("size mismatch: Size()=%d, wrote %d", tt.cmd.Size(), n)
			}
			if !bytes.Equal(buf[:n], tt.expected) {
				t.Errorf("encoding mismatch:\n got: %s\nwant: %s", FormatHex(buf[:n]), FormatHex(tt.expected))
			}
		})
	}
}

func TestEncodeCommand(t *testing.T) {
	for _, tt := range commandVectors {
		got, err := EncodeCommand(tt.cmd)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if !bytes.Equal(got, tt.expected) {
			t.Errorf("%s: got %s, want %s", tt.name, FormatHex(got), FormatHex(tt.expected))
		}
	}
}

func TestMarshalTo_BufferTooSmall(t *testing.T) {
	for _, tt := range commandVectors {
		buf := bytes.Repeat([]byte{0xEE}, tt.cmd.Size()-1)
		n, err := tt.cmd.MarshalTo(buf)

		var tooSmall *BufferTooSmallError
		if !errors.As(err, &tooSmall) {
			t.Fatalf("%s: expected BufferTooSmallError, got %v", tt.name, err)
		}
		if n != 0 {
			t.Errorf("%s: expected 0 bytes written, got %d", tt.name, n)
		}
		if tooSmall.Required != tt.cmd.Size() || tooSmall.Available != len(buf) {
			t.Errorf("%s: error fields mismatch: %+v", tt.name, tooSmall)
		}
		if !bytes.Equal(buf, bytes.Repeat([]byte{0xEE}, len(buf))) {
			t.Errorf("%s: buffer modified on failure", tt.name)
		}
	}
}

func TestMarshalTo_DoesNotAllocate(t *testing.T) {
	var cmd Command = SetFrequencyCommand{Frequency: 5800}
	var buf [MaxFrameSize]byte
	allocs := testing.AllocsPerRun(100, func() {
		cmd.MarshalTo(buf[:])
	})
	if allocs != 0 {
		t.Errorf("expected no allocations, got %.1f", allocs)
	}
}

func TestPower(t *testing.T) {
	tests := []struct {
		power Power
		wire  uint8
	}{
		{PowerLevel(0), 0x00},
		{PowerLevel(3), 0x03},
		{PowerDBm(0), 0x80},
		{PowerDBm(14), 0x8E},
		{PowerDBm(26), 0x9A},
	}
	for _, tt := range tests {
		if got := tt.power.Byte(); got != tt.wire {
			t.Errorf("%+v: expected 0x%02X, got 0x%02X", tt.power, tt.wire, got)
		}
		if got := ParsePower(tt.wire); got != tt.power {
			t.Errorf("0x%02X: expected %+v, got %+v", tt.wire, tt.power, got)
		}
	}
}

func TestSetModeCommand_Mode(t *testing.T) {
	tests := []struct {
		cmd  SetModeCommand
		mode uint8
	}{
		{SetModeCommand{}, 0x00},
		{SetModeCommand{PitmodeInRangeActive: true}, 0x01},
		{SetModeCommand{PitmodeOutRangeActive: true}, 0x02},
		{SetModeCommand{PitmodeEnabled: true}, 0x04},
		{SetModeCommand{Unlocked: true}, 0x08},
		{SetModeCommand{true, true, true, true}, 0x0F},
	}
	for _, tt := range tests {
		if got := tt.cmd.Mode(); got != tt.mode {
			t.Errorf("%+v: expected 0x%02X, got 0x%02X", tt.cmd, tt.mode, got)
		}
	}
}

// ============================================================
// Command Parser Tests
// ============================================================

func TestCommandParser_Vectors(t *testing.T) {
	p := NewCommandParser()
	for _, tt := range commandVectors {
		var got []Command
		for i, b := range tt.expected {
			cmd, err := p.PushByte(b)
			if err != nil {
				t.Fatalf("%s: byte %d: unexpected error: %v", tt.name, i, err)
			}
			if cmd != nil {
				got = append(got, cmd)
			}
		}
		if len(got) != 1 || !reflect.DeepEqual(got[0], tt.cmd) {
			t.Errorf("%s: got %#v, want %#v", tt.name, got, tt.cmd)
		}
	}
}

func TestCommandParser_InvalidCRC(t *testing.T) {
	p := NewCommandParser()
	frame := []byte{0xAA, 0x55, 0x07, 0x01, 0x00, 0xB9}
	var err error
	for _, b := range frame {
		_, err = p.PushByte(b)
	}
	if !IsCRCError(err) {
		t.Errorf("expected CRC error, got %v", err)
	}
}

func TestCommandParser_WakeByte(t *testing.T) {
	// Hosts may lead with a 0x00 byte to pull the line low
	p := NewCommandParser()
	var got Command
	for _, b := range append([]byte{0x00}, commandVectors[0].expected...) {
		cmd, err := p.PushByte(b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cmd != nil {
			got = cmd
		}
	}
	if _, ok := got.(GetSettingsCommand); !ok {
		t.Errorf("expected GetSettingsCommand, got %#v", got)
	}
}

func TestParseCommand_Unknown(t *testing.T) {
	f, _ := NewRawFrame([]byte{0xAA, 0x55, 0x01, 0x00, 0x00})
	_, err := ParseCommand(&f)
	var unknown *UnknownCommandError
	if !errors.As(err, &unknown) || unknown.Command != 0x01 {
		t.Errorf("expected UnknownCommandError for 0x01, got %v", err)
	}
}

func TestParseCommand_ShortPayload(t *testing.T) {
	f, _ := NewRawFrame([]byte{0xAA, 0x55, CmdSetFrequency, 0x01, 0x16, 0x00})
	if _, err := ParseCommand(&f); !errors.Is(err, ErrInvalidPayloadLength) {
		t.Errorf("expected ErrInvalidPayloadLength, got %v", err)
	}
}
