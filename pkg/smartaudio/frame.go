// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "fmt"

// RawFrame is a checksum-validated SmartAudio frame.
//
// The bytes are held in a fixed-size array so a frame returned by the parser
// stays valid after further bytes are pushed, without touching the heap.
type RawFrame struct {
	bytes  [MaxFrameSize]byte
	length int
}

// NewRawFrame copies b into a RawFrame. Frames shorter than 4 bytes or longer
// than MaxFrameSize are rejected.
func NewRawFrame(b []byte) (RawFrame, error) {
	if len(b) < 4 {
		return RawFrame{}, ErrShortFrame
	}
	if len(b) > MaxFrameSize {
		return RawFrame{}, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrInvalidPayloadLength, len(b), MaxFrameSize)
	}
	var f RawFrame
	f.length = copy(f.bytes[:], b)
	return f, nil
}

// Command returns the command byte (offset 2)
func (f *RawFrame) Command() uint8 {
	return f.bytes[2]
}

// Payload returns the bytes between the length byte and the CRC
func (f *RawFrame) Payload() []byte {
	if f.length <= 4 {
		return nil
	}
	return f.bytes[4 : f.length-1]
}

// CRC returns the checksum byte of the frame
func (f *RawFrame) CRC() uint8 {
	return f.bytes[f.length-1]
}

// Len returns the total number of bytes in the frame, header and CRC included
func (f *RawFrame) Len() int {
	return f.length
}

// Bytes returns the complete frame
func (f *RawFrame) Bytes() []byte {
	return f.bytes[:f.length]
}
