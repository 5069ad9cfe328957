// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vtx

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Thermoquad/smartaudio/internal/metrics"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

// startEmulator connects a client to an emulator over an in-memory pipe
func startEmulator(t *testing.T, initial smartaudio.Settings, emuOpts []EmulatorOption, opts ...Option) (*Client, *Emulator) {
	t.Helper()

	host, device := net.Pipe()
	emu := NewEmulator(initial, emuOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		emu.Serve(ctx, device)
	}()

	opts = append([]Option{WithMinInterval(0), WithTimeout(time.Second)}, opts...)
	client := NewClient(host, opts...)

	t.Cleanup(func() {
		client.Close()
		cancel()
		wg.Wait()
	})
	return client, emu
}

func TestClient_GetSettings(t *testing.T) {
	initial := smartaudio.Settings{
		Version:   smartaudio.Version21,
		Channel:   32,
		Frequency: 5658,
		Unlocked:  true,
	}
	client, _ := startEmulator(t, initial, nil)

	settings, err := client.GetSettings(context.Background())
	require.NoError(t, err)

	assert.Equal(t, smartaudio.Version21, settings.Version)
	assert.Equal(t, uint8(32), settings.Channel)
	assert.Equal(t, uint16(5658), settings.Frequency)
	assert.True(t, settings.Unlocked)
	require.NotNil(t, settings.PowerSettings)
	assert.Equal(t, DefaultPowerTable, *settings.PowerSettings)
}

func TestClient_ToleratesEchoAndWakeByte(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	client, _ := startEmulator(t,
		smartaudio.Settings{Version: smartaudio.Version20},
		[]EmulatorOption{WithEcho(true)},
		WithWakeByte(true), WithLogger(zap.New(core)),
	)

	resp, err := client.SetFrequency(context.Background(), 5800)
	require.NoError(t, err)
	assert.Equal(t, uint16(5800), resp.Frequency)

	// The echoed command is rejected by the response parser
	assert.NotZero(t, logs.FilterMessage("discarding frame").Len())
}

func TestClient_SetCommandsUpdateEmulator(t *testing.T) {
	client, emu := startEmulator(t, smartaudio.Settings{Version: smartaudio.Version20}, []EmulatorOption{WithEcho(true)})
	ctx := context.Background()

	ch, err := client.SetChannel(ctx, 39)
	require.NoError(t, err)
	assert.Equal(t, uint8(39), ch.Channel)

	pwr, err := client.SetPower(ctx, smartaudio.PowerLevel(2))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), pwr.Power)

	mode, err := client.SetMode(ctx, smartaudio.SetModeCommand{PitmodeEnabled: true, Unlocked: true})
	require.NoError(t, err)
	assert.Equal(t, smartaudio.SetModeResponse{PitmodeEnabled: true, Unlocked: true}, mode)

	settings, err := client.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(39), settings.Channel)
	assert.Equal(t, uint16(5917), settings.Frequency)
	assert.Equal(t, uint8(2), settings.PowerLevel)
	assert.True(t, settings.PitmodeEnabled)
	assert.True(t, settings.Unlocked)
	assert.False(t, settings.UserFrequencyMode)
	assert.Equal(t, settings, emu.Settings())
}

// silentPeer reads and discards everything written by the client
func silentPeer(t *testing.T) (net.Conn, func() int) {
	t.Helper()
	host, device := net.Pipe()

	var mu sync.Mutex
	writes := 0
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := device.Read(buf)
			if err != nil {
				return
			}
			mu.Lock()
			for _, b := range buf[:n] {
				if b == smartaudio.HeaderByte1 {
					writes++
				}
			}
			mu.Unlock()
		}
	}()
	t.Cleanup(func() { device.Close() })

	return host, func() int {
		mu.Lock()
		defer mu.Unlock()
		return writes
	}
}

func TestClient_TimeoutAndRetries(t *testing.T) {
	conn, frames := silentPeer(t)

	reg := prometheus.NewRegistry()
	m := metrics.NewProtocolMetrics(reg)
	client := NewClient(conn, WithMinInterval(0), WithTimeout(20*time.Millisecond), WithRetries(2), WithMetrics(m))
	defer client.Close()

	_, err := client.GetSettings(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, frames())

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "smartaudio_requests_total" {
			for _, metric := range f.GetMetric() {
				for _, label := range metric.GetLabel() {
					if label.GetName() == "result" && label.GetValue() == metrics.ResultTimeout {
						found = true
						assert.Equal(t, 3.0, metric.GetCounter().GetValue())
					}
				}
			}
		}
	}
	assert.True(t, found, "timeout requests not recorded")
}

func TestClient_ContextCancelled(t *testing.T) {
	conn, _ := silentPeer(t)
	client := NewClient(conn, WithMinInterval(0), WithTimeout(time.Second))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.GetSettings(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Closed(t *testing.T) {
	conn, _ := silentPeer(t)
	client := NewClient(conn, WithMinInterval(0))
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.GetSettings(context.Background())
	assert.Error(t, err)
}

func TestClient_IgnoresUnrelatedResponse(t *testing.T) {
	host, device := net.Pipe()
	client := NewClient(host, WithMinInterval(0), WithTimeout(time.Second))
	defer client.Close()
	defer device.Close()

	go func() {
		parser := smartaudio.NewCommandParser()
		buf := make([]byte, 64)
		for {
			n, err := device.Read(buf)
			if err != nil {
				return
			}
			for _, b := range buf[:n] {
				cmd, _ := parser.PushByte(b)
				if cmd == nil {
					continue
				}
				// An unrelated ack first, then the real answer
				stray, _ := smartaudio.EncodeResponse(smartaudio.SetPowerResponse{Power: 1})
				answer, _ := smartaudio.EncodeResponse(smartaudio.SetChannelResponse{Channel: 5})
				device.Write(append(stray, answer...))
			}
		}
	}()

	resp, err := client.SetChannel(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, uint8(5), resp.Channel)
}

func TestAnswers(t *testing.T) {
	assert.True(t, Answers(smartaudio.GetSettingsCommand{}, smartaudio.Settings{Version: smartaudio.Version10}))
	assert.True(t, Answers(smartaudio.SetPowerCommand{}, smartaudio.SetPowerResponse{}))
	assert.True(t, Answers(smartaudio.SetChannelCommand{}, smartaudio.SetChannelResponse{}))
	assert.True(t, Answers(smartaudio.SetFrequencyCommand{}, smartaudio.SetFrequencyResponse{}))
	assert.True(t, Answers(smartaudio.SetModeCommand{}, smartaudio.SetModeResponse{}))
	assert.False(t, Answers(smartaudio.SetPowerCommand{}, smartaudio.SetChannelResponse{}))
	assert.False(t, Answers(smartaudio.GetSettingsCommand{}, smartaudio.SetModeResponse{}))
}

// ============================================================
// Emulator Tests
// ============================================================

func TestEmulator_Defaults(t *testing.T) {
	emu := NewEmulator(smartaudio.Settings{})
	assert.Equal(t, smartaudio.Version20, emu.Settings().Version)
	assert.Nil(t, emu.Settings().PowerSettings)

	emu = NewEmulator(smartaudio.Settings{Version: smartaudio.Version10, PowerSettings: &DefaultPowerTable})
	assert.Nil(t, emu.Settings().PowerSettings)
}

func TestEmulator_SettingsIsACopy(t *testing.T) {
	emu := NewEmulator(smartaudio.Settings{Version: smartaudio.Version21})
	s := emu.Settings()
	s.PowerSettings.CurrentPower = 99
	assert.Equal(t, DefaultPowerTable.CurrentPower, emu.Settings().PowerSettings.CurrentPower)
}

func TestEmulator_SetPower(t *testing.T) {
	emu := NewEmulator(smartaudio.Settings{Version: smartaudio.Version21})

	resp := emu.Handle(smartaudio.SetPowerCommand{Power: smartaudio.PowerDBm(23)})
	assert.Equal(t, smartaudio.SetPowerResponse{Power: 23}, resp)
	s := emu.Settings()
	assert.Equal(t, uint8(23), s.PowerSettings.CurrentPower)
	assert.Equal(t, uint8(2), s.PowerLevel)

	emu.Handle(smartaudio.SetPowerCommand{Power: smartaudio.PowerLevel(3)})
	s = emu.Settings()
	assert.Equal(t, uint8(26), s.PowerSettings.CurrentPower)
	assert.Equal(t, uint8(3), s.PowerLevel)

	v20 := NewEmulator(smartaudio.Settings{Version: smartaudio.Version20})
	v20.Handle(smartaudio.SetPowerCommand{Power: smartaudio.PowerLevel(1)})
	assert.Equal(t, uint8(1), v20.Settings().PowerLevel)
}

func TestEmulator_FrequencyModes(t *testing.T) {
	emu := NewEmulator(smartaudio.Settings{Version: smartaudio.Version20})

	emu.Handle(smartaudio.SetFrequencyCommand{Frequency: 5900})
	s := emu.Settings()
	assert.Equal(t, uint16(5900), s.Frequency)
	assert.True(t, s.UserFrequencyMode)

	emu.Handle(smartaudio.SetChannelCommand{Channel: 8})
	s = emu.Settings()
	assert.Equal(t, uint16(5733), s.Frequency)
	assert.False(t, s.UserFrequencyMode)
}

func TestEmulator_ServeStopsOnCancel(t *testing.T) {
	_, device := net.Pipe()
	emu := NewEmulator(smartaudio.Settings{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- emu.Serve(ctx, device) }()

	cancel()
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
