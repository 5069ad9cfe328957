// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/smartaudio/internal/capture"
	"github.com/Thermoquad/smartaudio/internal/config"
)

// PasswordEnvVar supplies the WebSocket Basic auth password
const PasswordEnvVar = "SMARTAUDIO_PASSWORD"

// Connection provides a common interface for reading/writing bytes from serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection wraps a WebSocket connection for byte-level reading.
// Each binary message carries a chunk of the UART stream.
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, ErrConnectionClosed
			}
			return 0, err
		}

		// Text frames are bridge status chatter
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = copy(p, w.buf)
		return w.bufOffset, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// recordingConnection tees a connection into a capture file
type recordingConnection struct {
	*capture.Recorder
	file *os.File
}

func (r *recordingConnection) Close() error {
	return errors.Join(r.Recorder.Close(), r.file.Close())
}

// serialMode returns the UART framing: 8 data bits, no parity, 1 or 2 stop bits
func serialMode(baud, stopBits int) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}
	if stopBits == 1 {
		mode.StopBits = serial.OneStopBit
	}
	return mode
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(sc config.SerialConfig) (Connection, error) {
	port, err := serial.Open(sc.Port, serialMode(sc.Baud, sc.StopBits))
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", sc.Port, err)
	}
	return &SerialConnection{port: port}, nil
}

// serialOpener adapts OpenSerialConnection for port probing
func serialOpener(stopBits int) func(name string, baud int) (io.ReadWriteCloser, error) {
	return func(name string, baud int) (io.ReadWriteCloser, error) {
		return OpenSerialConnection(config.SerialConfig{Port: name, Baud: baud, StopBits: stopBits})
	}
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnvVar); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; read a line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket connection based on the
// loaded configuration. With --capture the connection is recorded.
func OpenConnection() (Connection, string, error) {
	conn, connInfo, err := openTransport()
	if err != nil {
		return nil, "", err
	}

	if capturePath == "" {
		return conn, connInfo, nil
	}

	f, err := os.Create(capturePath)
	if err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("create capture file: %w", err)
	}
	w, err := capture.NewWriter(f, connInfo)
	if err != nil {
		f.Close()
		conn.Close()
		return nil, "", err
	}
	logger.Info("recording capture", zap.String("path", capturePath), zap.String("id", w.Header().ID))

	return &recordingConnection{Recorder: capture.NewRecorder(conn, w), file: f},
		fmt.Sprintf("%s (recording to %s)", connInfo, capturePath), nil
}

func openTransport() (Connection, string, error) {
	if cfg.WS.URL != "" {
		password := ""
		if cfg.WS.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(cfg.WS.URL, cfg.WS.Username, password, cfg.WS.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cfg.WS.URL), nil
	}

	if cfg.Serial.Port != "" {
		conn, err := OpenSerialConnection(cfg.Serial)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud 8N%d", cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.StopBits), nil
	}

	return nil, "", errors.New("either --port or --url must be specified")
}
