// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package discovery

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/vtx"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

func TestProbePorts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emu := vtx.NewEmulator(smartaudio.Settings{Version: smartaudio.Version21, Channel: 5, Frequency: 5765})

	var openedBaud int
	prober := &Prober{
		List: func() ([]string, error) {
			return []string{"/dev/ttyS0", "/dev/ttyUSB0", "/dev/ttyUSB1"}, nil
		},
		Open: func(name string, baud int) (io.ReadWriteCloser, error) {
			openedBaud = baud
			switch name {
			case "/dev/ttyUSB0":
				host, device := net.Pipe()
				go emu.Serve(ctx, device)
				return host, nil
			case "/dev/ttyUSB1":
				// Something that never answers
				host, device := net.Pipe()
				go io.Copy(io.Discard, device)
				return host, nil
			default:
				return nil, errors.New("permission denied")
			}
		},
		Baud:    4800,
		Timeout: 50 * time.Millisecond,
		Log:     zap.NewNop(),
	}

	results, err := prober.ProbePorts(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "/dev/ttyUSB0", results[0].Port)
	assert.Equal(t, smartaudio.Version21, results[0].Settings.Version)
	assert.Equal(t, uint8(5), results[0].Settings.Channel)
	assert.Equal(t, 4800, openedBaud)
}

func TestProbePorts_ListError(t *testing.T) {
	prober := NewProber(nil, 4800)
	prober.List = func() ([]string, error) { return nil, errors.New("no sysfs") }

	_, err := prober.ProbePorts(context.Background())
	assert.Error(t, err)
}

func TestProbePorts_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := NewProber(nil, 4800)
	prober.List = func() ([]string, error) { return []string{"/dev/ttyUSB0"}, nil }

	results, err := prober.ProbePorts(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestBridgeFromEntry(t *testing.T) {
	entry := zeroconf.NewServiceEntry("bench-bridge", ServiceType, ServiceDomain)
	entry.HostName = "bridge.local."
	entry.Port = 8080
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.40")}
	entry.Text = []string{"path=uart0", "tls=1", "junk"}

	b := bridgeFromEntry(entry)
	assert.Equal(t, "bench-bridge", b.Instance)
	assert.Equal(t, "bridge.local", b.Host)
	assert.Equal(t, "/uart0", b.Path)
	assert.True(t, b.TLS)
	assert.Equal(t, "wss://192.168.1.40:8080/uart0", b.URL())
}

func TestBridgeURL_Defaults(t *testing.T) {
	entry := zeroconf.NewServiceEntry("b", ServiceType, ServiceDomain)
	entry.HostName = "bridge.local."
	entry.Port = 80

	b := bridgeFromEntry(entry)
	assert.Equal(t, "ws://bridge.local:80/smartaudio", b.URL())
}
