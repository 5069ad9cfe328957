// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vtx talks to SmartAudio video transmitters: a request/response
// client for the host side and an emulator for the VTX side.
package vtx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/smartaudio/internal/logging"
	"github.com/Thermoquad/smartaudio/internal/metrics"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

var (
	// ErrTimeout is returned when the VTX did not answer within the retry budget
	ErrTimeout = errors.New("vtx: no response")

	// ErrClosed is returned after the client or its connection has been closed
	ErrClosed = errors.New("vtx: client closed")
)

// Defaults match the SmartAudio timing used by flight controllers
const (
	DefaultTimeout     = 300 * time.Millisecond
	DefaultMinInterval = 100 * time.Millisecond
	DefaultRetries     = 2
)

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// WithMetrics records traffic into m
func WithMetrics(m *metrics.ProtocolMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTimeout sets how long to wait for each response
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMinInterval sets the minimum spacing between commands. Zero disables pacing.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRetries sets how many times a timed out command is resent
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithWakeByte prefixes every command with a 0x00 byte. Some VTXs need the
// line pulled low before the header to detect the start of a frame.
func WithWakeByte(enabled bool) Option {
	return func(c *Client) { c.wake = enabled }
}

// Client sends commands to a VTX and waits for the matching response.
//
// A single goroutine reads the connection and feeds a smartaudio.Parser.
// Commands are serialized: Do holds the line until its response arrives or
// times out. SmartAudio is single-wire half duplex, so the host usually reads
// back its own command; those echoes fail framing and are skipped.
type Client struct {
	rw      io.ReadWriter
	log     *zap.Logger
	metrics *metrics.ProtocolMetrics
	limiter *rate.Limiter
	timeout time.Duration
	retries int
	wake    bool

	mu        sync.Mutex
	responses chan smartaudio.Response
	done      chan struct{}
	readErr   error
	closeOnce sync.Once
}

// NewClient starts a client on rw. The client owns reads from rw until Close.
func NewClient(rw io.ReadWriter, opts ...Option) *Client {
	c := &Client{
		rw:        rw,
		log:       zap.NewNop(),
		limiter:   rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
		timeout:   DefaultTimeout,
		retries:   DefaultRetries,
		responses: make(chan smartaudio.Response, 8),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	parser := smartaudio.NewParser()
	buf := make([]byte, 64)

	for {
		n, err := c.rw.Read(buf)
		if n > 0 {
			c.metrics.AddReceived(n)
			logging.LogRawBytes(c.log, "rx", buf[:n])
		}

		for resp, perr := range parser.Responses(buf[:n]) {
			c.metrics.Observe(resp, perr)
			if perr != nil {
				c.log.Debug("discarding frame", zap.Error(perr))
				continue
			}
			select {
			case c.responses <- resp:
			default:
				c.log.Warn("response dropped, no pending request",
					zap.String("response", smartaudio.FormatResponseName(resp.ResponseCode())))
			}
		}

		if err != nil {
			c.readErr = err
			close(c.done)
			return
		}
	}
}

// Do sends cmd and returns the first response that answers it.
// Timed out attempts are retried up to the configured count.
func (c *Client) Do(ctx context.Context, cmd smartaudio.Command) (smartaudio.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame, err := c.frame(cmd)
	if err != nil {
		return nil, err
	}

	name := smartaudio.FormatCommandName(cmd.Code())
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		c.drain()
		start := time.Now()
		if _, err := c.rw.Write(frame); err != nil {
			c.metrics.ObserveRequest(cmd, metrics.ResultError, time.Since(start))
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		c.metrics.AddSent(len(frame))
		logging.LogRawBytes(c.log, "tx", frame)

		resp, err := c.await(ctx, cmd)
		if err == nil {
			c.metrics.ObserveRequest(cmd, metrics.ResultOK, time.Since(start))
			return resp, nil
		}
		if !errors.Is(err, ErrTimeout) {
			c.metrics.ObserveRequest(cmd, metrics.ResultError, time.Since(start))
			return nil, err
		}

		c.metrics.ObserveRequest(cmd, metrics.ResultTimeout, time.Since(start))
		c.log.Warn("no response",
			zap.String("command", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("timeout", c.timeout))
	}

	return nil, fmt.Errorf("%s: %w after %d attempts", name, ErrTimeout, c.retries+1)
}

func (c *Client) frame(cmd smartaudio.Command) ([]byte, error) {
	buf := make([]byte, 1+cmd.Size())
	offset := 1
	if c.wake {
		offset = 0
	}
	n, err := cmd.MarshalTo(buf[1:])
	if err != nil {
		return nil, err
	}
	return buf[offset : 1+n], nil
}

func (c *Client) await(ctx context.Context, cmd smartaudio.Command) (smartaudio.Response, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, c.closedErr()
		case <-timer.C:
			return nil, ErrTimeout
		case resp := <-c.responses:
			if Answers(cmd, resp) {
				return resp, nil
			}
			c.log.Debug("ignoring unrelated response",
				zap.String("response", smartaudio.FormatResponseName(resp.ResponseCode())))
		}
	}
}

// drain drops responses that arrived while no request was pending
func (c *Client) drain() {
	for {
		select {
		case resp := <-c.responses:
			c.log.Debug("dropping stale response",
				zap.String("response", smartaudio.FormatResponseName(resp.ResponseCode())))
		default:
			return
		}
	}
}

func (c *Client) closedErr() error {
	if c.readErr == nil || errors.Is(c.readErr, io.EOF) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
}

// Close closes the connection if it is closable and waits for the reader to stop
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if closer, ok := c.rw.(io.Closer); ok {
			err = closer.Close()
			<-c.done
		}
	})
	return err
}

// Answers reports whether resp is the response to cmd
func Answers(cmd smartaudio.Command, resp smartaudio.Response) bool {
	switch cmd.(type) {
	case smartaudio.GetSettingsCommand:
		_, ok := resp.(smartaudio.Settings)
		return ok
	case smartaudio.SetPowerCommand:
		_, ok := resp.(smartaudio.SetPowerResponse)
		return ok
	case smartaudio.SetChannelCommand:
		_, ok := resp.(smartaudio.SetChannelResponse)
		return ok
	case smartaudio.SetFrequencyCommand:
		_, ok := resp.(smartaudio.SetFrequencyResponse)
		return ok
	case smartaudio.SetModeCommand:
		_, ok := resp.(smartaudio.SetModeResponse)
		return ok
	}
	return false
}

// GetSettings queries the current VTX settings
func (c *Client) GetSettings(ctx context.Context) (smartaudio.Settings, error) {
	resp, err := c.Do(ctx, smartaudio.GetSettingsCommand{})
	if err != nil {
		return smartaudio.Settings{}, err
	}
	return resp.(smartaudio.Settings), nil
}

// SetPower sets the output power by level index or dBm
func (c *Client) SetPower(ctx context.Context, power smartaudio.Power) (smartaudio.SetPowerResponse, error) {
	resp, err := c.Do(ctx, smartaudio.SetPowerCommand{Power: power})
	if err != nil {
		return smartaudio.SetPowerResponse{}, err
	}
	return resp.(smartaudio.SetPowerResponse), nil
}

// SetChannel selects a channel from the band table
func (c *Client) SetChannel(ctx context.Context, channel uint8) (smartaudio.SetChannelResponse, error) {
	resp, err := c.Do(ctx, smartaudio.SetChannelCommand{Channel: channel})
	if err != nil {
		return smartaudio.SetChannelResponse{}, err
	}
	return resp.(smartaudio.SetChannelResponse), nil
}

// SetFrequency tunes to a frequency in MHz
func (c *Client) SetFrequency(ctx context.Context, freq uint16) (smartaudio.SetFrequencyResponse, error) {
	resp, err := c.Do(ctx, smartaudio.SetFrequencyCommand{Frequency: freq})
	if err != nil {
		return smartaudio.SetFrequencyResponse{}, err
	}
	return resp.(smartaudio.SetFrequencyResponse), nil
}

// SetMode sets pit mode and lock flags
func (c *Client) SetMode(ctx context.Context, mode smartaudio.SetModeCommand) (smartaudio.SetModeResponse, error) {
	resp, err := c.Do(ctx, mode)
	if err != nil {
		return smartaudio.SetModeResponse{}, err
	}
	return resp.(smartaudio.SetModeResponse), nil
}
