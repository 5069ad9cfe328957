// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads runtime settings from defaults, an optional YAML file,
// SMARTAUDIO_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SMARTAUDIO_SERIAL_PORT
const EnvPrefix = "SMARTAUDIO"

// ConfigEnvVar names a config file when --config is not given
const ConfigEnvVar = EnvPrefix + "_CONFIG"

// SerialConfig describes the UART link to the VTX
type SerialConfig struct {
	Port     string `mapstructure:"port"`
	Baud     int    `mapstructure:"baud"`
	StopBits int    `mapstructure:"stopBits"`
}

// WebSocketConfig describes a network UART bridge
type WebSocketConfig struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"noSSLVerify"`
}

// ClientConfig tunes the request/response client
type ClientConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MinInterval time.Duration `mapstructure:"minInterval"`
	Retries     int           `mapstructure:"retries"`
	WakeByte    bool          `mapstructure:"wakeByte"`
}

// LumberjackConfig configures log file rotation
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig selects log level and outputs. An empty level keeps logging silent.
type LoggingConfig struct {
	Level string           `mapstructure:"level"`
	File  LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig configures the standalone Prometheus listener
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// APIConfig configures the HTTP control API
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// Config is the top level configuration
type Config struct {
	Serial  SerialConfig    `mapstructure:"serial"`
	WS      WebSocketConfig `mapstructure:"ws"`
	Client  ClientConfig    `mapstructure:"client"`
	Logging LoggingConfig   `mapstructure:"logging"`
	Metrics MetricsConfig   `mapstructure:"metrics"`
	API     APIConfig       `mapstructure:"api"`
}

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"port":          "serial.port",
	"baud":          "serial.baud",
	"stop-bits":     "serial.stopBits",
	"url":           "ws.url",
	"username":      "ws.username",
	"no-ssl-verify": "ws.noSSLVerify",
	"timeout":       "client.timeout",
	"retries":       "client.retries",
	"wake":          "client.wakeByte",
	"log-level":     "logging.level",
	"log-file":      "logging.file.filename",
	"metrics-addr":  "metrics.addr",
	"listen":        "api.addr",
}

// Load reads configuration. If path is empty, SMARTAUDIO_CONFIG is consulted and
// then smartaudio.yaml in the working directory; a missing default file is not
// an error. Flags that were set on the command line take precedence over
// everything else; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("smartaudio")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the transport cannot honour
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		return fmt.Errorf("serial.stopBits must be 1 or 2, got %d", c.Serial.StopBits)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client.timeout must be positive, got %s", c.Client.Timeout)
	}
	if c.Client.Retries < 0 {
		return fmt.Errorf("client.retries must not be negative, got %d", c.Client.Retries)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config", "")

	// SmartAudio runs at 4800 baud 8N2
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 4800)
	v.SetDefault("serial.stopBits", 2)

	v.SetDefault("ws.url", "")
	v.SetDefault("ws.username", "")
	v.SetDefault("ws.noSSLVerify", false)

	v.SetDefault("client.timeout", "300ms")
	v.SetDefault("client.minInterval", "100ms")
	v.SetDefault("client.retries", 2)
	v.SetDefault("client.wakeByte", true)

	v.SetDefault("logging.level", "")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 7)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("api.addr", ":8080")
}
