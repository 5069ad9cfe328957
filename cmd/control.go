// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/vtx"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

var controlPoll time.Duration

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling a SmartAudio VTX",
	Long: `Control a SmartAudio VTX via an interactive terminal UI.

Features:
  - Current settings display, refreshed periodically
  - Channel, frequency and power changes
  - Pit mode and lock toggles
  - Event log with request latency
  - Automatic reconnection on connection loss

Arrow keys select an action, Enter runs it. Actions that need a value open
an input field; Esc cancels it.

Supports both serial and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().DurationVar(&controlPoll, "poll", 5*time.Second, "Settings refresh interval (0 disables)")
}

const (
	reconnectBackoff    = time.Second
	maxReconnectBackoff = 30 * time.Second
)

// controlSession owns the VTX client and replaces it after a connection loss
type controlSession struct {
	ctx     context.Context
	open    func() (*vtx.Client, string, error)
	timeout time.Duration

	mu       sync.Mutex
	client   *vtx.Client
	connInfo string
}

func newControlSession(ctx context.Context, open func() (*vtx.Client, string, error), timeout time.Duration) (*controlSession, error) {
	client, connInfo, err := open()
	if err != nil {
		return nil, err
	}
	return &controlSession{
		ctx:      ctx,
		open:     open,
		timeout:  timeout,
		client:   client,
		connInfo: connInfo,
	}, nil
}

func (s *controlSession) current() (*vtx.Client, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, s.connInfo
}

// send returns a tea.Cmd that runs c against the current client
func (s *controlSession) send(c smartaudio.Command) tea.Cmd {
	client, _ := s.current()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		start := time.Now()
		resp, err := client.Do(ctx, c)
		return controlResultMsg{
			command:  c,
			response: resp,
			err:      err,
			elapsed:  time.Since(start),
		}
	}
}

// reconnect closes the current client and reopens the connection with
// exponential backoff until it succeeds or the session ends
func (s *controlSession) reconnect() tea.Cmd {
	return func() tea.Msg {
		old, _ := s.current()
		old.Close()

		backoff := reconnectBackoff
		for {
			select {
			case <-s.ctx.Done():
				return nil
			case <-time.After(backoff):
			}

			client, connInfo, err := s.open()
			if err == nil {
				s.mu.Lock()
				s.client = client
				s.connInfo = connInfo
				s.mu.Unlock()
				return reconnectedMsg{connInfo: connInfo}
			}
			logger.Debug("reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))

			backoff = min(backoff*2, maxReconnectBackoff)
		}
	}
}

func (s *controlSession) Close() error {
	client, _ := s.current()
	return client.Close()
}

// connectionLost reports whether err means the client can no longer be used
func connectionLost(err error) bool {
	return errors.Is(err, vtx.ErrClosed) || errors.Is(err, ErrConnectionClosed)
}

func runControl(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	session, err := newControlSession(ctx, openClient, requestTimeout())
	if err != nil {
		return err
	}
	defer session.Close()

	_, connInfo := session.current()
	m := initialControlModel(session, connInfo, controlPoll)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
