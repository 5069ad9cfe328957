// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"fmt"
	"iter"
)

// StateKind identifies the parser state machine position
type StateKind uint8

// Parser states
const (
	StateAwaitingHeader1 StateKind = iota
	StateAwaitingHeader2
	StateAwaitingCommand
	StateAwaitingLength
	StateReading
)

// State is the active parser state. Length is only meaningful for StateReading
// and holds the declared length byte of the frame being read.
type State struct {
	Kind   StateKind
	Length int
}

func (s State) String() string {
	switch s.Kind {
	case StateAwaitingHeader1:
		return "AwaitingHeader1"
	case StateAwaitingHeader2:
		return "AwaitingHeader2"
	case StateAwaitingCommand:
		return "AwaitingCommand"
	case StateAwaitingLength:
		return "AwaitingLength"
	case StateReading:
		return fmt.Sprintf("Reading(%d)", s.Length)
	default:
		return fmt.Sprintf("State(%d)", s.Kind)
	}
}

// framing describes the frame layout of one direction of the link
type framing struct {
	// accepted length byte range [minLength, maxLength)
	minLength int
	maxLength int
	// the CRC byte sits at offset Length+crcOffset
	crcOffset int
	// first byte covered by the CRC
	crcStart int
}

var (
	// VTX responses: the length byte counts payload and CRC, the CRC skips the header
	responseFraming = framing{minLength: MinPayloadSize, maxLength: MaxPayloadSize, crcOffset: 3, crcStart: 2}

	// Host commands: the length byte counts payload only, the CRC covers the header
	commandFraming = framing{minLength: 0, maxLength: MaxFrameSize - frameOverhead + 1, crcOffset: 4, crcStart: 0}
)

// assembler is the byte-driven state machine shared by Parser and CommandParser
type assembler struct {
	buffer   [MaxFrameSize]byte
	position int
	state    State
}

func (a *assembler) reset() {
	a.position = 0
	a.state = State{Kind: StateAwaitingHeader1}
}

func (a *assembler) push(b byte, fr *framing) (RawFrame, bool, error) {
	switch a.state.Kind {
	case StateAwaitingHeader1:
		// Anything but a header byte is line noise between frames
		if b != HeaderByte1 {
			return RawFrame{}, false, nil
		}
		a.position = 0
		a.buffer[a.position] = b
		a.state = State{Kind: StateAwaitingHeader2}
		return RawFrame{}, false, nil

	case StateAwaitingHeader2:
		if b != HeaderByte2 {
			return RawFrame{}, false, a.unexpected(b)
		}
		a.store(b)
		a.state = State{Kind: StateAwaitingCommand}
		return RawFrame{}, false, nil

	case StateAwaitingCommand:
		a.store(b)
		a.state = State{Kind: StateAwaitingLength}
		return RawFrame{}, false, nil

	case StateAwaitingLength:
		if int(b) < fr.minLength || int(b) >= fr.maxLength {
			return RawFrame{}, false, a.unexpected(b)
		}
		a.store(b)
		a.state = State{Kind: StateReading, Length: int(b)}
		return RawFrame{}, false, nil

	case StateReading:
		a.store(b)
		if a.position < a.state.Length+fr.crcOffset {
			return RawFrame{}, false, nil
		}
		end := a.position + 1
		a.reset()

		calculated := CalculateCRC(a.buffer[fr.crcStart : end-1])
		if calculated != b {
			return RawFrame{}, false, &InvalidCRCError{Calculated: calculated, Received: b}
		}

		var frame RawFrame
		frame.length = copy(frame.bytes[:], a.buffer[:end])
		return frame, true, nil

	default:
		return RawFrame{}, false, a.unexpected(b)
	}
}

func (a *assembler) store(b byte) {
	a.position++
	a.buffer[a.position] = b
}

func (a *assembler) unexpected(b byte) error {
	state := a.state
	a.reset()
	return &UnexpectedDataError{State: state, Byte: b}
}

// Parser assembles VTX response frames one byte at a time.
//
// Bytes other than the first header byte are skipped while waiting for a
// frame, so the parser synchronizes on its own after line noise. Once a
// header has started, any byte that breaks the frame structure is reported
// as an error and the parser returns to StateAwaitingHeader1. The zero value
// is ready to use.
//
// A Parser is not safe for concurrent use; use one per byte stream.
type Parser struct {
	asm assembler
}

// NewParser creates a new response parser
func NewParser() *Parser {
	return &Parser{}
}

// Reset drops any partially assembled frame
func (p *Parser) Reset() {
	p.asm.reset()
}

// State returns the current parser state
func (p *Parser) State() State {
	return p.asm.state
}

// PushByteRaw processes a single byte through the parser state machine.
// Returns the completed frame and true once the final byte of a frame with a
// valid CRC arrives. Returns false with a nil error while the frame is incomplete.
func (p *Parser) PushByteRaw(b byte) (RawFrame, bool, error) {
	return p.asm.push(b, &responseFraming)
}

// PushByte pushes a byte and decodes the completed frame, if any.
// Returns a nil Response and nil error while the frame is incomplete.
func (p *Parser) PushByte(b byte) (Response, error) {
	frame, ok, err := p.PushByteRaw(b)
	if err != nil || !ok {
		return nil, err
	}
	return ParseResponse(&frame)
}

// Responses returns a sequence over the responses and errors found in data.
// Bytes are pushed lazily as the sequence is consumed, continuing from the
// parser's current state, and the sequence ends with the input.
func (p *Parser) Responses(data []byte) iter.Seq2[Response, error] {
	return func(yield func(Response, error) bool) {
		for _, b := range data {
			resp, err := p.PushByte(b)
			if resp == nil && err == nil {
				continue
			}
			if !yield(resp, err) {
				return
			}
		}
	}
}
