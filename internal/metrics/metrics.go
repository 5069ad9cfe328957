// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes SmartAudio link counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

const namespace = "smartaudio"

// Error kinds used as the "kind" label of errors_total
const (
	KindCRC     = "crc"
	KindFraming = "framing"
	KindDecode  = "decode"
)

// Request results used as the "result" label of requests_total
const (
	ResultOK      = "ok"
	ResultTimeout = "timeout"
	ResultError   = "error"
)

// NewRegistry creates a registry with the Go and process collectors registered
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the Prometheus scrape handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ProtocolMetrics counts traffic on a SmartAudio link.
// A nil *ProtocolMetrics is valid and records nothing.
type ProtocolMetrics struct {
	FramesTotal     *prometheus.CounterVec // labels: command
	ErrorsTotal     *prometheus.CounterVec // labels: kind
	BytesReceived   prometheus.Counter
	BytesSent       prometheus.Counter
	RequestsTotal   *prometheus.CounterVec // labels: command, result
	RequestDuration *prometheus.HistogramVec
}

// NewProtocolMetrics registers and returns the protocol metrics
func NewProtocolMetrics(reg prometheus.Registerer) *ProtocolMetrics {
	m := &ProtocolMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Decoded response frames by command.",
		}, []string{"command"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Frames rejected by the parser or decoder.",
		}, []string{"kind"}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total bytes read from the link.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to the link.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Commands sent to the VTX by result.",
		}, []string{"command", "result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from sending a command to receiving its response.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1},
		}, []string{"command"}),
	}
	reg.MustRegister(m.FramesTotal, m.ErrorsTotal, m.BytesReceived, m.BytesSent, m.RequestsTotal, m.RequestDuration)
	return m
}

// Observe records the outcome of one parser result
func (m *ProtocolMetrics) Observe(resp smartaudio.Response, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ErrorsTotal.WithLabelValues(ErrorKind(err)).Inc()
		return
	}
	if resp != nil {
		m.FramesTotal.WithLabelValues(smartaudio.FormatResponseName(resp.ResponseCode())).Inc()
	}
}

// AddReceived counts bytes read from the link
func (m *ProtocolMetrics) AddReceived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesReceived.Add(float64(n))
}

// AddSent counts bytes written to the link
func (m *ProtocolMetrics) AddSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesSent.Add(float64(n))
}

// ObserveRequest records a completed request
func (m *ProtocolMetrics) ObserveRequest(cmd smartaudio.Command, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	name := smartaudio.FormatCommandName(cmd.Code())
	m.RequestsTotal.WithLabelValues(name, result).Inc()
	if result == ResultOK {
		m.RequestDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

// ErrorKind classifies a parser error for the errors_total label
func ErrorKind(err error) string {
	switch {
	case smartaudio.IsCRCError(err):
		return KindCRC
	case smartaudio.IsFramingError(err):
		return KindFraming
	default:
		return KindDecode
	}
}
