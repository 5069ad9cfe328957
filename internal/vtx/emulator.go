// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vtx

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/logging"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

// DefaultPowerTable is the dBm table reported by emulated 2.1 devices
var DefaultPowerTable = smartaudio.PowerSettings{
	CurrentPower:   14,
	NumPowerLevels: 4,
	DBmLevels:      [4]uint8{14, 20, 23, 26},
}

// EmulatorOption configures an Emulator
type EmulatorOption func(*Emulator)

// WithEmulatorLogger sets the emulator logger
func WithEmulatorLogger(logger *zap.Logger) EmulatorOption {
	return func(e *Emulator) { e.log = logger }
}

// WithEcho makes the emulator read back each command before answering,
// the way a shared single-wire UART does
func WithEcho(enabled bool) EmulatorOption {
	return func(e *Emulator) { e.echo = enabled }
}

// Emulator answers SmartAudio commands like a VTX would
type Emulator struct {
	mu       sync.Mutex
	settings smartaudio.Settings
	log      *zap.Logger
	echo     bool
}

// NewEmulator creates an emulator with the given initial settings.
// A 2.1 device without a power table gets DefaultPowerTable.
func NewEmulator(initial smartaudio.Settings, opts ...EmulatorOption) *Emulator {
	if initial.Version == smartaudio.VersionUnknown {
		initial.Version = smartaudio.Version20
	}
	if initial.Version == smartaudio.Version21 {
		ps := DefaultPowerTable
		if initial.PowerSettings != nil {
			ps = *initial.PowerSettings
		}
		initial.PowerSettings = &ps
	} else {
		initial.PowerSettings = nil
	}

	e := &Emulator{settings: initial, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings returns a copy of the current settings
func (e *Emulator) Settings() smartaudio.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Emulator) snapshot() smartaudio.Settings {
	s := e.settings
	if s.PowerSettings != nil {
		ps := *s.PowerSettings
		s.PowerSettings = &ps
	}
	return s
}

// Handle applies cmd to the emulated state and returns the response to send
func (e *Emulator) Handle(cmd smartaudio.Command) smartaudio.Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := &e.settings
	switch cmd := cmd.(type) {
	case smartaudio.GetSettingsCommand:
		return e.snapshot()

	case smartaudio.SetPowerCommand:
		e.setPower(cmd.Power)
		return smartaudio.SetPowerResponse{Power: cmd.Power.Value}

	case smartaudio.SetChannelCommand:
		s.Channel = cmd.Channel
		s.UserFrequencyMode = false
		if freq, ok := smartaudio.ChannelFrequency(cmd.Channel); ok {
			s.Frequency = freq
		}
		return smartaudio.SetChannelResponse{Channel: cmd.Channel}

	case smartaudio.SetFrequencyCommand:
		s.Frequency = cmd.Frequency
		s.UserFrequencyMode = true
		return smartaudio.SetFrequencyResponse{Frequency: cmd.Frequency}

	case smartaudio.SetModeCommand:
		s.PitmodeInRangeActive = cmd.PitmodeInRangeActive
		s.PitmodeOutRangeActive = cmd.PitmodeOutRangeActive
		s.PitmodeEnabled = cmd.PitmodeEnabled
		s.Unlocked = cmd.Unlocked
		return smartaudio.SetModeResponse(cmd)
	}
	return nil
}

func (e *Emulator) setPower(p smartaudio.Power) {
	s := &e.settings
	ps := s.PowerSettings

	if p.DBm {
		if ps == nil {
			// Older devices only know level indexes
			s.PowerLevel = p.Value
			return
		}
		ps.CurrentPower = p.Value
		for i := 0; i < int(ps.NumPowerLevels) && i < len(ps.DBmLevels); i++ {
			if ps.DBmLevels[i] == p.Value {
				s.PowerLevel = uint8(i)
			}
		}
		return
	}

	s.PowerLevel = p.Value
	if ps != nil && int(p.Value) < len(ps.DBmLevels) && p.Value < ps.NumPowerLevels {
		ps.CurrentPower = ps.DBmLevels[p.Value]
	}
}

// Serve reads commands from rw and writes responses until ctx is cancelled or
// the connection fails. If rw is an io.Closer it is closed when ctx is done.
func (e *Emulator) Serve(ctx context.Context, rw io.ReadWriter) error {
	if closer, ok := rw.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { closer.Close() })
		defer stop()
	}

	parser := smartaudio.NewCommandParser()
	buf := make([]byte, 64)
	out := make([]byte, smartaudio.MaxFrameSize)

	for {
		n, err := rw.Read(buf)
		for i := 0; i < n; i++ {
			frame, ok, perr := parser.PushByteRaw(buf[i])
			if perr != nil {
				e.log.Debug("discarding command", zap.Error(perr))
				continue
			}
			if !ok {
				continue
			}

			cmd, perr := smartaudio.ParseCommand(&frame)
			if perr != nil {
				e.log.Debug("discarding command", zap.Error(perr))
				continue
			}
			e.log.Info("command", zap.String("command", smartaudio.FormatCommand(cmd)))

			if e.echo {
				if _, werr := rw.Write(frame.Bytes()); werr != nil {
					return e.serveErr(ctx, werr)
				}
			}

			resp := e.Handle(cmd)
			m, merr := smartaudio.MarshalResponseTo(resp, out)
			if merr != nil {
				e.log.Error("encode response", zap.Error(merr))
				continue
			}
			logging.LogRawBytes(e.log, "tx", out[:m])
			if _, werr := rw.Write(out[:m]); werr != nil {
				return e.serveErr(ctx, werr)
			}
		}

		if err != nil {
			return e.serveErr(ctx, err)
		}
	}
}

func (e *Emulator) serveErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
