// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package api exposes a connected VTX over HTTP
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/config"
)

// Server wraps the gin router and its http.Server
type Server struct {
	srv *http.Server
}

// NewRouter builds the gin engine with health, metrics and VTX routes.
// metricsHandler may be nil.
func NewRouter(vtx VTX, metricsHandler http.Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	h := NewHandler(vtx, logger)
	v1 := r.Group("/api/v1")
	{
		v1.GET("/settings", h.GetSettings)
		v1.PUT("/channel", h.SetChannel)
		v1.PUT("/frequency", h.SetFrequency)
		v1.PUT("/power", h.SetPower)
		v1.PUT("/mode", h.SetMode)
	}
	return r
}

// New creates a server listening on cfg.Addr
func New(cfg config.APIConfig, vtx VTX, metricsHandler http.Handler, logger *zap.Logger) *Server {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(vtx, metricsHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{srv: srv}
}

// Start blocks serving requests
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
