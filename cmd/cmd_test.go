// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/smartaudio/internal/capture"
	"github.com/Thermoquad/smartaudio/internal/vtx"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

func TestParseChannelArg(t *testing.T) {
	ch, err := parseChannelArg("32")
	require.NoError(t, err)
	assert.Equal(t, uint8(32), ch)

	ch, err = parseChannelArg("R1")
	require.NoError(t, err)
	assert.Equal(t, uint8(32), ch)

	_, err = parseChannelArg("40")
	assert.Error(t, err)

	_, err = parseChannelArg("Z9")
	assert.Error(t, err)
}

func TestParsePowerArg(t *testing.T) {
	p, err := parsePowerArg("2", false)
	require.NoError(t, err)
	assert.Equal(t, smartaudio.PowerLevel(2), p)

	p, err = parsePowerArg("20", true)
	require.NoError(t, err)
	assert.Equal(t, smartaudio.PowerDBm(20), p)

	_, err = parsePowerArg("4", false)
	assert.Error(t, err)

	_, err = parsePowerArg("high", false)
	assert.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("2.1")
	require.NoError(t, err)
	assert.Equal(t, smartaudio.Version21, v)

	_, err = parseVersion("3.0")
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0 seconds", formatDuration(0))
	assert.Equal(t, "1 second", formatDuration(time.Second))
	assert.Equal(t, "1 minute and 30 seconds", formatDuration(90*time.Second))
	assert.Equal(t, "1 hour, 1 minute, and 1 second", formatDuration(3661*time.Second))
	assert.Equal(t, "2 days", formatDuration(48*time.Hour))
}

func testSettings() smartaudio.Settings {
	return smartaudio.Settings{
		Version:    smartaudio.Version21,
		Channel:    32,
		Frequency:  5658,
		PowerLevel: 14,
		Unlocked:   true,
		PowerSettings: &smartaudio.PowerSettings{
			CurrentPower:   14,
			NumPowerLevels: 4,
			DBmLevels:      [4]uint8{14, 20, 23, 26},
		},
	}
}

func TestWriteSettings_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSettings(&buf, testSettings(), "json"))

	var report smartaudio.SettingsReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "R1", report.ChannelName)
	assert.Equal(t, uint16(5658), report.Frequency)
	require.NotNil(t, report.Power)
	assert.Equal(t, []int{14, 20, 23, 26}, report.Power.Levels)
}

func TestWriteSettings_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSettings(&buf, testSettings(), "yaml"))

	var report smartaudio.SettingsReport
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, uint8(32), report.Channel)
	assert.True(t, report.Unlocked)
}

func TestWriteSettings_TextWarnsOnAnomalies(t *testing.T) {
	s := testSettings()
	s.Channel = 50

	var buf bytes.Buffer
	require.NoError(t, writeSettings(&buf, s, "text"))
	assert.Contains(t, buf.String(), "WARNING")
}

func TestReplay(t *testing.T) {
	var file bytes.Buffer
	w, err := capture.NewWriter(&file, "test")
	require.NoError(t, err)

	cmdBytes, err := smartaudio.EncodeCommand(smartaudio.GetSettingsCommand{})
	require.NoError(t, err)
	respBytes, err := smartaudio.EncodeResponse(testSettings())
	require.NoError(t, err)

	require.NoError(t, w.Write(capture.DirTX, cmdBytes))
	require.NoError(t, w.Write(capture.DirRX, respBytes))

	r, err := capture.NewReader(&file)
	require.NoError(t, err)

	var out bytes.Buffer
	stats, err := replay(r, &out)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), stats.ValidFrames)
	assert.Zero(t, stats.CRCErrors)
	assert.Contains(t, out.String(), "-> GET_SETTINGS")
}

func TestBuildCommand(t *testing.T) {
	byKind := func(k actionKind) controlAction {
		for _, a := range controlActions {
			if a.kind == k {
				return a
			}
		}
		t.Fatalf("no action %d", k)
		return controlAction{}
	}

	c, err := buildCommand(byKind(actionChannel), "F4")
	require.NoError(t, err)
	assert.Equal(t, smartaudio.SetChannelCommand{Channel: 27}, c)

	c, err = buildCommand(byKind(actionFrequency), " 5800 ")
	require.NoError(t, err)
	assert.Equal(t, smartaudio.SetFrequencyCommand{Frequency: 5800}, c)

	c, err = buildCommand(byKind(actionPowerDBm), "")
	require.NoError(t, err)
	assert.Equal(t, smartaudio.SetPowerCommand{Power: smartaudio.PowerDBm(14)}, c)

	c, err = buildCommand(byKind(actionPowerLevel), "3")
	require.NoError(t, err)
	assert.Equal(t, smartaudio.SetPowerCommand{Power: smartaudio.PowerLevel(3)}, c)

	_, err = buildCommand(byKind(actionFrequency), "fast")
	assert.Error(t, err)

	_, err = buildCommand(byKind(actionToggleLock), "1")
	assert.Error(t, err)
}

func TestToggleCommand(t *testing.T) {
	_, err := toggleCommand(actionTogglePitmode, nil)
	assert.Error(t, err)

	s := testSettings()
	c, err := toggleCommand(actionTogglePitmode, &s)
	require.NoError(t, err)
	assert.Equal(t, smartaudio.SetModeCommand{PitmodeEnabled: true, Unlocked: true}, c)

	c, err = toggleCommand(actionToggleLock, &s)
	require.NoError(t, err)
	assert.Equal(t, smartaudio.SetModeCommand{Unlocked: false}, c)
}

func TestSameSettings(t *testing.T) {
	a, b := testSettings(), testSettings()
	assert.True(t, sameSettings(a, b))

	b.PowerSettings.CurrentPower = 20
	assert.False(t, sameSettings(a, b))

	b = testSettings()
	b.PowerSettings = nil
	assert.False(t, sameSettings(a, b))

	b = testSettings()
	b.Channel = 0
	assert.False(t, sameSettings(a, b))
}

// startControlSession runs an emulator behind a control session
func startControlSession(t *testing.T) *controlSession {
	t.Helper()

	host, device := net.Pipe()
	emu := vtx.NewEmulator(testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		emu.Serve(ctx, device)
	}()

	open := func() (*vtx.Client, string, error) {
		return vtx.NewClient(host, vtx.WithMinInterval(0), vtx.WithTimeout(time.Second)), "pipe", nil
	}
	session, err := newControlSession(ctx, open, 2*time.Second)
	require.NoError(t, err)

	t.Cleanup(func() {
		session.Close()
		cancel()
		wg.Wait()
	})
	return session
}

func TestControlModel_SetThenReadBack(t *testing.T) {
	session := startControlSession(t)
	m := initialControlModel(session, "pipe", 0)

	next, cmd := m.dispatch(smartaudio.SetChannelCommand{Channel: 27})
	m = next.(controlModel)
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.inFlight)

	ack, ok := cmd().(controlResultMsg)
	require.True(t, ok)
	require.NoError(t, ack.err)
	assert.Equal(t, smartaudio.SetChannelResponse{Channel: 27}, ack.response)

	next, cmd = m.Update(ack)
	m = next.(controlModel)
	require.NotNil(t, cmd)

	readBack, ok := cmd().(controlResultMsg)
	require.True(t, ok)
	require.NoError(t, readBack.err)

	next, _ = m.Update(readBack)
	m = next.(controlModel)

	require.NotNil(t, m.lastSettings)
	assert.Equal(t, uint8(27), m.lastSettings.Channel)
	assert.Equal(t, uint64(2), m.requests)
	assert.Zero(t, m.inFlight)
}

func TestControlModel_RequestError(t *testing.T) {
	session := startControlSession(t)
	m := initialControlModel(session, "pipe", 0)

	next, cmd := m.Update(controlResultMsg{
		command: smartaudio.GetSettingsCommand{},
		err:     vtx.ErrTimeout,
	})
	m = next.(controlModel)

	assert.Nil(t, cmd)
	assert.False(t, m.connectionLost)
	assert.Equal(t, uint64(1), m.failures)
	require.NotEmpty(t, m.errorLog)
	assert.True(t, m.errorLog[len(m.errorLog)-1].isError)
}

func TestControlModel_DispatchWhileDisconnected(t *testing.T) {
	m := initialControlModel(nil, "pipe", 0)
	m.connectionLost = true

	next, cmd := m.dispatch(smartaudio.GetSettingsCommand{})
	m = next.(controlModel)

	assert.Nil(t, cmd)
	assert.Zero(t, m.inFlight)
}

func TestConnectionLost(t *testing.T) {
	assert.True(t, connectionLost(vtx.ErrClosed))
	assert.True(t, connectionLost(errors.Join(errors.New("read"), ErrConnectionClosed)))
	assert.False(t, connectionLost(vtx.ErrTimeout))
}
