// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/bridge"
	"github.com/Thermoquad/smartaudio/internal/discovery"
)

var (
	bridgeAddr   string
	bridgePath   string
	bridgeName   string
	bridgeUser   string
	bridgeNoMDNS bool
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Share a local serial port as a WebSocket UART bridge",
	Long: `Expose the VTX serial port to other machines over WebSocket.

Every byte read from the port is sent to all clients as a binary message, and
binary messages from clients are written to the port. Clients connect with
--url, for example:

  smartaudio bridge --port /dev/ttyUSB0
  smartaudio raw_log --url ws://bridge-host:8765/smartaudio

The bridge is advertised over mDNS as _smartaudio._tcp unless --no-mdns is
given, so "smartaudio discovery --mdns" finds it. With --auth-user, clients
must send HTTP Basic credentials; the password is read from
SMARTAUDIO_PASSWORD or prompted.`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringVar(&bridgeAddr, "addr", ":8765", "Listen address")
	bridgeCmd.Flags().StringVar(&bridgePath, "path", "/smartaudio", "WebSocket endpoint path")
	bridgeCmd.Flags().StringVar(&bridgeName, "name", "", "mDNS instance name (default smartaudio-<hostname>)")
	bridgeCmd.Flags().StringVar(&bridgeUser, "auth-user", "", "Require HTTP Basic auth with this username")
	bridgeCmd.Flags().BoolVar(&bridgeNoMDNS, "no-mdns", false, "Do not advertise over mDNS")
}

func runBridge(cmd *cobra.Command, args []string) error {
	if cfg.Serial.Port == "" {
		return errors.New("--port is required")
	}

	var password string
	if bridgeUser != "" {
		var err error
		if password, err = GetPassword(); err != nil {
			return err
		}
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	srv := bridge.New(conn, logger.Named("bridge"))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	ws := r.Group(bridgePath)
	if bridgeUser != "" {
		ws.Use(gin.BasicAuth(gin.Accounts{bridgeUser: password}))
	}
	ws.GET("", gin.WrapH(srv))

	ln, err := net.Listen("tcp", bridgeAddr)
	if err != nil {
		conn.Close()
		return fmt.Errorf("listen: %w", err)
	}
	httpSrv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := ln.Addr().(*net.TCPAddr).Port
	fmt.Printf("SmartAudio - WebSocket Bridge\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Listening: ws://%s%s\n", net.JoinHostPort(bridgeHost(), strconv.Itoa(port)), bridgePath)

	if !bridgeNoMDNS {
		name := bridgeName
		if name == "" {
			name = "smartaudio-" + bridgeHost()
		}
		unadvertise, err := discovery.Advertise(name, port, bridgePath)
		if err != nil {
			logger.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			defer unadvertise()
			fmt.Printf("Advertising: %s.%s.%s\n", name, discovery.ServiceType, discovery.ServiceDomain)
		}
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(ln)
	}()

	runErr := srv.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return runErr
}

func bridgeHost() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}
