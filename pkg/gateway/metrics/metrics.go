// Package metrics exposes gateway Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hypley-ai/hypley-live/pkg/core/live"
)

// Metrics holds all Prometheus metrics for the gateway. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	LiveSessionsActive  prometheus.Gauge
	LiveSessionsTotal   *prometheus.CounterVec
	LiveSessionDuration prometheus.Histogram
	LiveAudioBytesTotal *prometheus.CounterVec
	LiveFramesTotal     *prometheus.CounterVec
	LiveInterrupts      *prometheus.CounterVec

	ToolCallsTotal *prometheus.CounterVec
	TurnsTotal     prometheus.Counter

	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance on its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "hypley"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"endpoint"}),
		LiveSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of active live sessions",
		}),
		LiveSessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Total number of live sessions by final state",
		}, []string{"state"}),
		LiveSessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		LiveAudioBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_audio_bytes_total",
			Help:      "Total audio bytes relayed in live sessions",
		}, []string{"direction"}),
		LiveFramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_capture_frames_total",
			Help:      "Captured frames by outcome",
		}, []string{"outcome"}),
		LiveInterrupts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_interrupts_total",
			Help:      "Playback interruptions by origin",
		}, []string{"origin"}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by function and outcome",
		}, []string{"name", "outcome"}),
		TurnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_turns_total",
			Help:      "Completed live turns",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by type",
		}, []string{"error_type"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.LiveSessionsActive,
		m.LiveSessionsTotal,
		m.LiveSessionDuration,
		m.LiveAudioBytesTotal,
		m.LiveFramesTotal,
		m.LiveInterrupts,
		m.ToolCallsTotal,
		m.TurnsTotal,
		m.ErrorsTotal,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordLiveSessionStart records a new live session starting.
func (m *Metrics) RecordLiveSessionStart() {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Inc()
}

// RecordLiveSessionEnd records a live session ending in state.
func (m *Metrics) RecordLiveSessionEnd(state live.State, duration time.Duration, stats live.CaptureStats) {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Dec()
	m.LiveSessionsTotal.WithLabelValues(state.String()).Inc()
	m.LiveSessionDuration.Observe(duration.Seconds())
	m.LiveFramesTotal.WithLabelValues("sent").Add(float64(stats.Sent))
	m.LiveFramesTotal.WithLabelValues("gated").Add(float64(stats.Gated))
	m.LiveFramesTotal.WithLabelValues("dropped").Add(float64(stats.Dropped))
	m.LiveFramesTotal.WithLabelValues("failed").Add(float64(stats.Failed))
}

// RecordLiveAudio records relayed audio bytes. direction is "in" or "out".
func (m *Metrics) RecordLiveAudio(direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.LiveAudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// ObserveEvent updates counters from a live session event.
func (m *Metrics) ObserveEvent(ev live.Event) {
	if m == nil {
		return
	}
	switch e := ev.(type) {
	case *live.TurnCompleteEvent:
		m.TurnsTotal.Inc()
	case *live.InterruptedEvent:
		origin := "server"
		if e.Local {
			origin = "local"
		}
		m.LiveInterrupts.WithLabelValues(origin).Inc()
	case *live.ToolCalledEvent:
		outcome := "ok"
		if _, failed := e.Response.Response["error"]; failed {
			outcome = "error"
		} else if noop, _ := e.Response.Response["noop"].(bool); noop {
			outcome = "unknown"
		}
		m.ToolCallsTotal.WithLabelValues(e.Call.Name, outcome).Inc()
	case *live.ErrorEvent:
		m.RecordError(e.Err)
	}
}

// RecordError counts err by its canonical type.
func (m *Metrics) RecordError(err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType(err)).Inc()
}
