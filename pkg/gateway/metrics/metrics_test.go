package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/live"
)

func TestObserveEvent(t *testing.T) {
	m := New("test")

	m.ObserveEvent(&live.TurnCompleteEvent{User: "oi", Model: "olá"})
	m.ObserveEvent(&live.InterruptedEvent{Local: true})
	m.ObserveEvent(&live.InterruptedEvent{})
	m.ObserveEvent(&live.ToolCalledEvent{
		Call:     live.ToolCall{Name: "activateCamera"},
		Response: live.ToolResponse{Response: map[string]any{"result": "ok"}},
	})
	m.ObserveEvent(&live.ToolCalledEvent{
		Call:     live.ToolCall{Name: "mystery"},
		Response: live.ToolResponse{Response: map[string]any{"result": "ok", "noop": true}},
	})
	m.ObserveEvent(&live.ErrorEvent{Err: core.NewTransportError("receive", errors.New("reset"))})

	if got := testutil.ToFloat64(m.TurnsTotal); got != 1 {
		t.Errorf("turns = %v", got)
	}
	if got := testutil.ToFloat64(m.LiveInterrupts.WithLabelValues("local")); got != 1 {
		t.Errorf("local interrupts = %v", got)
	}
	if got := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("mystery", "unknown")); got != 1 {
		t.Errorf("unknown tool calls = %v", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("transport_error")); got != 1 {
		t.Errorf("transport errors = %v", got)
	}
}

func TestLiveSessionLifecycle(t *testing.T) {
	m := New("test")
	m.RecordLiveSessionStart()
	m.RecordLiveSessionStart()
	m.RecordLiveSessionEnd(live.StateClosed, 3*time.Second, live.CaptureStats{Sent: 10, Dropped: 2})

	if got := testutil.ToFloat64(m.LiveSessionsActive); got != 1 {
		t.Errorf("active = %v", got)
	}
	if got := testutil.ToFloat64(m.LiveFramesTotal.WithLabelValues("dropped")); got != 2 {
		t.Errorf("dropped frames = %v", got)
	}
	if got := testutil.ToFloat64(m.LiveSessionsTotal.WithLabelValues("closed")); got != 1 {
		t.Errorf("closed sessions = %v", got)
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := New("test")
	m.RecordRequest("/v1/chat", http.StatusOK, 20*time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `test_requests_total{endpoint="/v1/chat",status="200"} 1`) {
		t.Errorf("exposition missing request counter:\n%s", rr.Body.String())
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", 200, time.Second)
	m.RecordLiveSessionStart()
	m.ObserveEvent(&live.TurnCompleteEvent{})
	m.RecordError(errors.New("x"))
}
