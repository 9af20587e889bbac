// Package metrics provides Prometheus collectors and HTTP middleware for
// monitoring the gateway.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/howard-nolan/cozegate/internal/provider"
	"github.com/howard-nolan/cozegate/internal/stream"
	"github.com/prometheus/client_golang/prometheus"
)

// LLMBuckets defines histogram buckets suited for LLM latencies, ranging
// from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Upstream call modes.
const (
	ModeBlocking  = "blocking"
	ModeStreaming = "streaming"
)

// Metrics holds the gateway's collectors. Create one per process with New;
// all methods are safe for concurrent use.
type Metrics struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	StreamingConnections prometheus.Gauge
	UpstreamRequests     *prometheus.CounterVec
	UpstreamLatency      *prometheus.HistogramVec
	StreamChunks         prometheus.Counter
	StreamOutcomes       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cozegate_requests_total",
				Help: "HTTP requests served, by method, route and status class.",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cozegate_request_duration_seconds",
				Help:    "HTTP request duration.",
				Buckets: LLMBuckets,
			},
			[]string{"method", "route"},
		),
		StreamingConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cozegate_streaming_connections_active",
				Help: "Streamed responses currently in flight.",
			},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cozegate_upstream_requests_total",
				Help: "Calls to the upstream chat API, by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cozegate_upstream_latency_seconds",
				Help:    "Time until the upstream answered (streaming: until the stream opened).",
				Buckets: LLMBuckets,
			},
			[]string{"mode"},
		),
		StreamChunks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cozegate_stream_chunks_total",
				Help: "Chunks written to streaming clients.",
			},
		),
		StreamOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cozegate_stream_outcomes_total",
				Help: "Finished streams, by how they ended.",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.StreamingConnections,
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.StreamChunks,
		m.StreamOutcomes,
	)
	return m
}

// ObserveUpstream records one upstream call that started at start.
func (m *Metrics) ObserveUpstream(mode string, start time.Time, err error) {
	m.UpstreamLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	m.UpstreamRequests.WithLabelValues(mode, ErrorKind(err)).Inc()
}

// StreamStarted marks a streamed response as in flight. Call the returned
// function when it is done.
func (m *Metrics) StreamStarted() func() {
	m.StreamingConnections.Inc()
	return m.StreamingConnections.Dec
}

// ObserveStream records a finished stream: its chunk count and how it ended.
// Outcomes are "completed" (terminal event seen), "incomplete" (upstream
// closed early), or the error kind.
func (m *Metrics) ObserveStream(res stream.Result, err error) {
	m.StreamChunks.Add(float64(res.Chunks))

	outcome := ErrorKind(err)
	if err == nil {
		outcome = "completed"
		if !res.Terminated {
			outcome = "incomplete"
		}
	}
	m.StreamOutcomes.WithLabelValues(outcome).Inc()
}

// ErrorKind maps an error to a low-cardinality label.
func ErrorKind(err error) string {
	var (
		upstreamErr *provider.UpstreamError
		decodeErr   *provider.StreamDecodeError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, provider.ErrInvalidRequest):
		return "invalid_request"
	case errors.As(err, &upstreamErr):
		return "upstream_error"
	case errors.As(err, &decodeErr):
		return "stream_decode_error"
	case errors.Is(err, stream.ErrMissingContent):
		return "missing_content"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}
