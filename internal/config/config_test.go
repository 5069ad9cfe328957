// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smartaudio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 4800, cfg.Serial.Baud)
	assert.Equal(t, 2, cfg.Serial.StopBits)
	assert.Equal(t, 300*time.Millisecond, cfg.Client.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Client.MinInterval)
	assert.Equal(t, 2, cfg.Client.Retries)
	assert.True(t, cfg.Client.WakeByte)
	assert.Empty(t, cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.API.Addr)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyUSB1
  baud: 4900
ws:
  url: ws://bridge.local/uart
client:
  timeout: 500ms
  retries: 0
logging:
  level: debug
  file:
    filename: /tmp/smartaudio.log
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, 4900, cfg.Serial.Baud)
	assert.Equal(t, 2, cfg.Serial.StopBits)
	assert.Equal(t, "ws://bridge.local/uart", cfg.WS.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.Timeout)
	assert.Equal(t, 0, cfg.Client.Retries)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/smartaudio.log", cfg.Logging.File.Filename)
	assert.Equal(t, 10, cfg.Logging.File.MaxSizeMB)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "serial:\n  port: /dev/ttyUSB1\n")
	t.Setenv("SMARTAUDIO_SERIAL_PORT", "/dev/ttyACM0")
	t.Setenv("SMARTAUDIO_CLIENT_RETRIES", "5")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 5, cfg.Client.Retries)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "api:\n  addr: 127.0.0.1:9000\n")
	t.Setenv(ConfigEnvVar, path)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.API.Addr)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SMARTAUDIO_SERIAL_PORT", "/dev/ttyACM0")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("port", "", "")
	flags.Int("baud", 4800, "")
	flags.Duration("timeout", 300*time.Millisecond, "")
	require.NoError(t, flags.Parse([]string{"--port", "/dev/ttyS3", "--timeout", "1s"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyS3", cfg.Serial.Port)
	assert.Equal(t, time.Second, cfg.Client.Timeout)
	assert.Equal(t, 4800, cfg.Serial.Baud)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "serial:\n  stopBits: 3\n")
	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopBits")

	path = writeConfig(t, "client:\n  timeout: 0s\n")
	_, err = Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client.timeout")
}
