package mw

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

type upgradeRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (w *upgradeRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return nil, nil, nil
}

func decodeEnvelope(t *testing.T, body []byte) core.Error {
	t.Helper()
	var env struct {
		Error core.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return env.Error
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType core.ErrorType
		status   int
	}{
		{"timeout", fmt.Errorf("chat: %w", context.DeadlineExceeded), core.ErrAPI, http.StatusGatewayTimeout},
		{"cancelled", context.Canceled, core.ErrAPI, http.StatusRequestTimeout},
		{"invalid", core.NewInvalidRequestError("bad"), core.ErrInvalidRequest, http.StatusBadRequest},
		{"not found", core.NewNotFoundError("conversation x"), core.ErrNotFound, http.StatusNotFound},
		{"quota", core.NewQuotaError("slow down", 0, errors.New("429")), core.ErrQuota, http.StatusTooManyRequests},
		{"upstream", core.NewAPIError("generate content", errors.New("boom")), core.ErrAPI, http.StatusBadGateway},
		{"device", core.NewDeviceError("no microphone", nil), core.ErrDevice, http.StatusServiceUnavailable},
		{"opaque", errors.New("secret detail"), core.ErrAPI, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, status := Canonical(tt.err, "req_1")
			if got.Type != tt.wantType || status != tt.status {
				t.Fatalf("Canonical() = %s %d, want %s %d", got.Type, status, tt.wantType, tt.status)
			}
			if got.RequestID != "req_1" || got.Cause != nil {
				t.Errorf("request id %q, cause %v", got.RequestID, got.Cause)
			}
		})
	}
	if got, status := Canonical(nil, ""); got != nil || status != http.StatusOK {
		t.Errorf("Canonical(nil) = %v, %d", got, status)
	}
}

func TestRecover_WritesEnvelope(t *testing.T) {
	h := RequestID(Recover(nil, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	e := decodeEnvelope(t, rr.Body.Bytes())
	if e.Type != core.ErrAPI || e.Message != "internal error" {
		t.Fatalf("error=%+v", e)
	}
	if e.RequestID == "" || e.RequestID != rr.Header().Get("X-Request-ID") {
		t.Fatalf("request id %q vs header %q", e.RequestID, rr.Header().Get("X-Request-ID"))
	}
}

func TestAccessLog(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{"regular", "/v1/chat", http.StatusOK, "INFO"},
		{"server error", "/v1/chat", http.StatusBadGateway, "WARN"},
		{"health check", "/healthz", http.StatusOK, "DEBUG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			h := RequestID(AccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("abc"))
			})))
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("X-Request-ID", "req_fixed")
			h.ServeHTTP(httptest.NewRecorder(), req)

			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("log line %q: %v", buf.String(), err)
			}
			if line["level"] != tt.wantLevel || line["status"] != float64(tt.status) {
				t.Errorf("line=%v", line)
			}
			if line["request_id"] != "req_fixed" || line["bytes"] != float64(3) {
				t.Errorf("line=%v", line)
			}
		})
	}
}

func TestAccessLog_PassesHijackThrough(t *testing.T) {
	rec := &upgradeRecorder{ResponseRecorder: httptest.NewRecorder()}
	var buf bytes.Buffer
	h := AccessLog(slog.New(slog.NewJSONHandler(&buf, nil)), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("http.Hijacker lost")
		}
		_, _, _ = hj.Hijack()
	}))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/live", nil))

	if !rec.hijacked {
		t.Fatal("hijack not forwarded")
	}
	var line map[string]any
	_ = json.Unmarshal(buf.Bytes(), &line)
	if line["upgraded"] != true || line["status"] != float64(http.StatusSwitchingProtocols) {
		t.Errorf("line=%v", line)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != len("req_")+20 || rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("minted id %q, header %q", seen, rr.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "from-browser")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "from-browser" {
		t.Fatalf("propagated id %q", seen)
	}
}
