// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monitor decodes a passively observed SmartAudio line, where host
// commands and VTX responses share one wire.
package monitor

import (
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

// EventKind identifies what a decoder Event carries
type EventKind int

const (
	EventSync EventKind = iota
	EventResponse
	EventCommand
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSync:
		return "sync"
	case EventResponse:
		return "response"
	case EventCommand:
		return "command"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one decoded item from the line
type Event struct {
	Kind EventKind
	Time time.Time

	Response  smartaudio.Response
	Anomalies []smartaudio.ValidationError
	Command   smartaudio.Command
	Err       error

	// Skipped is the number of bytes discarded before the first frame (EventSync)
	Skipped int
}

// Decoder runs a response parser and, optionally, a command parser over the
// same byte stream. Errors are held back until the first valid frame, since
// a monitor usually attaches mid-frame. While commands are decoded, response
// framing errors caused by command frames are suppressed.
type Decoder struct {
	responses smartaudio.Parser
	commands  smartaudio.CommandParser

	decodeCommands bool
	synchronized   bool
	skipped        int
}

// NewDecoder creates a line decoder. With decodeCommands set, host command
// frames are reported as EventCommand.
func NewDecoder(decodeCommands bool) *Decoder {
	return &Decoder{decodeCommands: decodeCommands}
}

// Synchronized reports whether a valid frame has been seen
func (d *Decoder) Synchronized() bool {
	return d.synchronized
}

// Feed pushes data observed at time at and calls emit for each event
func (d *Decoder) Feed(data []byte, at time.Time, emit func(Event)) {
	for _, b := range data {
		d.push(b, at, emit)
	}
}

func (d *Decoder) push(b byte, at time.Time, emit func(Event)) {
	resp, respErr := d.responses.PushByte(b)

	var cmd smartaudio.Command
	var cmdBusy bool
	if d.decodeCommands {
		cmd, _ = d.commands.PushByte(b)
		cmdBusy = d.commands.State().Kind != smartaudio.StateAwaitingHeader1
	}

	switch {
	case resp != nil:
		d.commands.Reset()
		d.sync(at, emit)
		emit(Event{Kind: EventResponse, Time: at, Response: resp, Anomalies: smartaudio.ValidateResponse(resp)})

	case cmd != nil:
		d.responses.Reset()
		d.sync(at, emit)
		emit(Event{Kind: EventCommand, Time: at, Command: cmd})

	case respErr != nil:
		if cmdBusy && smartaudio.IsFramingError(respErr) {
			return
		}
		if !d.synchronized {
			d.skipped++
			return
		}
		emit(Event{Kind: EventError, Time: at, Err: respErr})

	case !d.synchronized && d.responses.State().Kind == smartaudio.StateAwaitingHeader1 && !cmdBusy:
		d.skipped++
	}
}

func (d *Decoder) sync(at time.Time, emit func(Event)) {
	if d.synchronized {
		return
	}
	d.synchronized = true
	emit(Event{Kind: EventSync, Time: at, Skipped: d.skipped})
}
