// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"encoding/binary"
	"fmt"
)

// MarshalResponseTo writes the wire frame of a VTX response into buf and
// returns the number of bytes written. This is the VTX side of the link and is
// used by emulators and tests.
//
// The length byte of a response counts the payload plus the CRC, and set
// responses carry a trailing reserved byte, matching what real devices send.
func MarshalResponseTo(r Response, buf []byte) (int, error) {
	var payload [MaxPayloadSize]byte
	var n int

	switch r := r.(type) {
	case Settings:
		if r.Version == VersionUnknown {
			return 0, fmt.Errorf("%w: settings without a protocol version", ErrInvalidHeader)
		}
		payload[0] = r.Channel
		payload[1] = r.PowerLevel
		payload[2] = settingsMode(r)
		binary.BigEndian.PutUint16(payload[3:5], r.Frequency)
		n = 5
		if r.Version == Version21 {
			var ps PowerSettings
			if r.PowerSettings != nil {
				ps = *r.PowerSettings
			}
			payload[5] = ps.CurrentPower
			payload[6] = ps.NumPowerLevels
			copy(payload[7:11], ps.DBmLevels[:])
			n = 11
		}
	case SetPowerResponse:
		payload[0] = r.Power
		n = 1
	case SetChannelResponse:
		payload[0] = r.Channel
		n = 1
	case SetFrequencyResponse:
		binary.BigEndian.PutUint16(payload[0:2], r.Frequency)
		n = 2
	case SetModeResponse:
		payload[0] = SetModeCommand(r).Mode()
		n = 1
	default:
		return 0, fmt.Errorf("smartaudio: cannot encode response %T", r)
	}

	if _, ok := r.(Settings); !ok {
		payload[n] = responseReservedByte
		n++
	}

	return frameResponse(buf, r.ResponseCode(), payload[:n])
}

// EncodeResponse returns the wire bytes of a VTX response in a new slice
func EncodeResponse(r Response) ([]byte, error) {
	buf := make([]byte, MaxFrameSize)
	n, err := MarshalResponseTo(r, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func frameResponse(buf []byte, code uint8, payload []byte) (int, error) {
	size := frameOverhead + len(payload)
	if len(buf) < size {
		return 0, &BufferTooSmallError{Required: size, Available: len(buf)}
	}

	buf[0] = HeaderByte1
	buf[1] = HeaderByte2
	buf[2] = code
	buf[3] = uint8(len(payload) + 1)
	copy(buf[4:], payload)
	buf[size-1] = CalculateCRC(buf[2 : size-1])
	return size, nil
}
