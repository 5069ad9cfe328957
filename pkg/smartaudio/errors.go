// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHeader reports a header byte mismatch or an unrecognized response command.
	ErrInvalidHeader = errors.New("smartaudio: invalid header")

	// ErrInvalidPayloadLength reports a length byte outside the accepted range,
	// or a payload too short for the fields its command carries.
	ErrInvalidPayloadLength = errors.New("smartaudio: invalid payload length")

	// ErrShortFrame is returned when building a RawFrame from fewer than 4 bytes.
	ErrShortFrame = errors.New("smartaudio: frame shorter than 4 bytes")
)

// BufferTooSmallError is returned by encoders when the target buffer cannot hold
// the frame. Nothing is written in that case.
type BufferTooSmallError struct {
	Required  int
	Available int
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("smartaudio: buffer too small: need %d bytes, have %d", e.Required, e.Available)
}

// InvalidCRCError is returned when a structurally complete frame fails its checksum.
type InvalidCRCError struct {
	Calculated uint8
	Received   uint8
}

func (e *InvalidCRCError) Error() string {
	return fmt.Sprintf("smartaudio: CRC mismatch: calculated 0x%02X, received 0x%02X", e.Calculated, e.Received)
}

// UnknownCommandError carries a command code that has no known decoding.
// It matches ErrInvalidHeader with errors.Is.
type UnknownCommandError struct {
	Command uint8
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("smartaudio: unknown command 0x%02X", e.Command)
}

// Is reports unknown commands as invalid headers.
func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrInvalidHeader
}

// UnexpectedDataError is returned when a byte violates the expectation of the
// active parser state. The parser has already been reset when this is returned.
type UnexpectedDataError struct {
	State State
	Byte  byte
}

func (e *UnexpectedDataError) Error() string {
	return fmt.Sprintf("smartaudio: unexpected byte 0x%02X in state %s", e.Byte, e.State)
}

// Is classifies the error by the state it happened in: header states match
// ErrInvalidHeader, the length state matches ErrInvalidPayloadLength.
func (e *UnexpectedDataError) Is(target error) bool {
	switch target {
	case ErrInvalidHeader:
		return e.State.Kind == StateAwaitingHeader1 || e.State.Kind == StateAwaitingHeader2
	case ErrInvalidPayloadLength:
		return e.State.Kind == StateAwaitingLength
	}
	return false
}

// IsCRCError returns true if err is or wraps an InvalidCRCError.
func IsCRCError(err error) bool {
	var crcErr *InvalidCRCError
	return errors.As(err, &crcErr)
}

// IsFramingError returns true if err was raised while assembling a frame
// (header or length violations, as opposed to checksum failures).
func IsFramingError(err error) bool {
	var dataErr *UnexpectedDataError
	return errors.As(err, &dataErr)
}
