// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge shares a local SmartAudio UART with WebSocket clients.
//
// Every chunk read from the UART is broadcast to all connected clients as a
// binary message; binary messages from any client are written to the UART.
package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/logging"
)

const (
	// Time allowed to write a message to a client
	writeWait = 10 * time.Second

	// Time allowed between pongs from a client
	pongWait = 60 * time.Second

	// Ping period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Largest message accepted from a client
	maxMessageSize = 1024

	// Outgoing chunks buffered per client before it is dropped as too slow
	sendQueue = 64
)

// Server bridges one UART to any number of WebSocket clients
type Server struct {
	uart     io.ReadWriter
	log      *zap.Logger
	upgrader websocket.Upgrader

	writeMu sync.Mutex

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a bridge for uart
func New(uart io.ReadWriter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		uart: uart,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
		},
		clients: make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Run copies UART input to the clients until ctx is done or the UART fails.
// If the UART is an io.Closer it is closed when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if closer, ok := s.uart.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { closer.Close() })
		defer stop()
	}
	defer s.closeClients()

	buf := make([]byte, 256)
	for {
		n, err := s.uart.Read(buf)
		if n > 0 {
			logging.LogRawBytes(s.log, "uart rx", buf[:n])
			s.broadcast(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (s *Server) broadcast(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		chunk := make([]byte, len(data))
		copy(chunk, data)
		select {
		case c.send <- chunk:
		default:
			s.log.Warn("dropping slow client", zap.String("remote_addr", c.conn.RemoteAddr().String()))
			delete(s.clients, c)
			close(c.send)
		}
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and attaches the client to the UART
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendQueue)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	remoteAddr := conn.RemoteAddr().String()
	s.log.Info("client connected", zap.String("remote_addr", remoteAddr))

	go s.writePump(c)
	s.readPump(c)

	s.log.Info("client disconnected", zap.String("remote_addr", remoteAddr))
}

// readPump forwards client messages to the UART until the client goes away
func (s *Server) readPump(c *client) {
	defer func() {
		s.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		logging.LogRawBytes(s.log, "uart tx", data)
		s.writeMu.Lock()
		_, err = s.uart.Write(data)
		s.writeMu.Unlock()
		if err != nil {
			s.log.Error("uart write failed", zap.Error(err))
			return
		}
	}
}

// writePump is the only writer on the client connection
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
