// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package discovery finds SmartAudio transmitters on local serial ports and
// network UART bridges advertised over mDNS.
package discovery

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/vtx"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

// DefaultProbeTimeout bounds how long each port is given to answer
const DefaultProbeTimeout = 500 * time.Millisecond

// PortOpener opens a serial port at the given baud rate
type PortOpener func(name string, baud int) (io.ReadWriteCloser, error)

// PortResult is a port that answered a get settings request
type PortResult struct {
	Port     string
	Settings smartaudio.Settings
}

// Prober sends a get settings command to every serial port and collects the
// ones with a VTX attached
type Prober struct {
	// List returns candidate port names; defaults to serial.GetPortsList
	List func() ([]string, error)
	// Open opens a port; required
	Open    PortOpener
	Baud    int
	Timeout time.Duration
	Log     *zap.Logger
}

// NewProber creates a prober for the system serial ports
func NewProber(open PortOpener, baud int) *Prober {
	return &Prober{
		List:    serial.GetPortsList,
		Open:    open,
		Baud:    baud,
		Timeout: DefaultProbeTimeout,
		Log:     zap.NewNop(),
	}
}

// ProbePorts probes each port in turn. Ports that fail to open or do not
// answer are skipped; only listing errors are returned.
func (p *Prober) ProbePorts(ctx context.Context) ([]PortResult, error) {
	ports, err := p.List()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	results := make([]PortResult, 0)
	for _, name := range ports {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		settings, err := p.probe(ctx, name)
		if err != nil {
			p.Log.Debug("port did not answer", zap.String("port", name), zap.Error(err))
			continue
		}
		p.Log.Info("found VTX", zap.String("port", name), zap.Stringer("version", settings.Version))
		results = append(results, PortResult{Port: name, Settings: settings})
	}
	return results, nil
}

func (p *Prober) probe(ctx context.Context, name string) (smartaudio.Settings, error) {
	conn, err := p.Open(name, p.Baud)
	if err != nil {
		return smartaudio.Settings{}, err
	}

	client := vtx.NewClient(conn,
		vtx.WithLogger(p.Log),
		vtx.WithTimeout(p.Timeout),
		vtx.WithRetries(0),
		vtx.WithMinInterval(0),
		vtx.WithWakeByte(true),
	)
	defer client.Close()

	return client.GetSettings(ctx)
}
