// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Thermoquad/smartaudio/internal/vtx"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

// VTX is the device surface the API drives. *vtx.Client satisfies it.
type VTX interface {
	GetSettings(ctx context.Context) (smartaudio.Settings, error)
	SetPower(ctx context.Context, power smartaudio.Power) (smartaudio.SetPowerResponse, error)
	SetChannel(ctx context.Context, channel uint8) (smartaudio.SetChannelResponse, error)
	SetFrequency(ctx context.Context, freq uint16) (smartaudio.SetFrequencyResponse, error)
	SetMode(ctx context.Context, mode smartaudio.SetModeCommand) (smartaudio.SetModeResponse, error)
}

var _ VTX = (*vtx.Client)(nil)

// Handler serves the /api/v1 routes
type Handler struct {
	vtx    VTX
	logger *zap.Logger
}

// NewHandler creates a Handler
func NewHandler(v VTX, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{vtx: v, logger: logger}
}

type channelRequest struct {
	Channel *uint8 `json:"channel"`
	Name    string `json:"name"`
}

type frequencyRequest struct {
	Frequency uint16 `json:"frequency" binding:"required"`
}

type powerRequest struct {
	Level *uint8 `json:"level"`
	DBm   *uint8 `json:"dbm"`
}

type modeRequest struct {
	PitmodeInRange  bool `json:"pitmodeInRange"`
	PitmodeOutRange bool `json:"pitmodeOutRange"`
	PitmodeEnabled  bool `json:"pitmodeEnabled"`
	Unlocked        bool `json:"unlocked"`
}

// GetSettings handles GET /api/v1/settings
func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.vtx.GetSettings(c.Request.Context())
	if err != nil {
		h.fail(c, "get settings", err)
		return
	}
	c.JSON(http.StatusOK, smartaudio.NewSettingsReport(s))
}

// SetChannel handles PUT /api/v1/channel. The body carries either a channel
// index or a band/channel name such as "R1".
func (h *Handler) SetChannel(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	var channel uint8
	switch {
	case req.Channel != nil && req.Name != "":
		badRequest(c, "specify either channel or name")
		return
	case req.Channel != nil:
		channel = *req.Channel
	case req.Name != "":
		ch, err := smartaudio.ChannelFromName(req.Name)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		channel = ch
	default:
		badRequest(c, "channel or name is required")
		return
	}
	if int(channel) >= smartaudio.NumChannels {
		badRequest(c, "channel out of range")
		return
	}

	resp, err := h.vtx.SetChannel(c.Request.Context(), channel)
	if err != nil {
		h.fail(c, "set channel", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"channel":     resp.Channel,
		"channelName": smartaudio.ChannelName(resp.Channel),
	})
}

// SetFrequency handles PUT /api/v1/frequency
func (h *Handler) SetFrequency(c *gin.Context) {
	var req frequencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	resp, err := h.vtx.SetFrequency(c.Request.Context(), req.Frequency)
	if err != nil {
		h.fail(c, "set frequency", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"frequency": resp.Frequency})
}

// SetPower handles PUT /api/v1/power with either a level index or a dBm value
func (h *Handler) SetPower(c *gin.Context) {
	var req powerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	var power smartaudio.Power
	switch {
	case req.Level != nil && req.DBm != nil:
		badRequest(c, "specify either level or dbm")
		return
	case req.Level != nil:
		if *req.Level > smartaudio.MaxPowerLevelIndex {
			badRequest(c, "power level out of range")
			return
		}
		power = smartaudio.PowerLevel(*req.Level)
	case req.DBm != nil:
		if *req.DBm > smartaudio.MaxDBm {
			badRequest(c, "dbm out of range")
			return
		}
		power = smartaudio.PowerDBm(*req.DBm)
	default:
		badRequest(c, "level or dbm is required")
		return
	}

	resp, err := h.vtx.SetPower(c.Request.Context(), power)
	if err != nil {
		h.fail(c, "set power", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"power": resp.Power})
}

// SetMode handles PUT /api/v1/mode
func (h *Handler) SetMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	resp, err := h.vtx.SetMode(c.Request.Context(), smartaudio.SetModeCommand{
		PitmodeInRangeActive:  req.PitmodeInRange,
		PitmodeOutRangeActive: req.PitmodeOutRange,
		PitmodeEnabled:        req.PitmodeEnabled,
		Unlocked:              req.Unlocked,
	})
	if err != nil {
		h.fail(c, "set mode", err)
		return
	}
	c.JSON(http.StatusOK, modeRequest{
		PitmodeInRange:  resp.PitmodeInRangeActive,
		PitmodeOutRange: resp.PitmodeOutRangeActive,
		PitmodeEnabled:  resp.PitmodeEnabled,
		Unlocked:        resp.Unlocked,
	})
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, vtx.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, vtx.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	h.logger.Warn("vtx request failed", zap.String("op", op), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
