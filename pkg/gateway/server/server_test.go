package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hypley-ai/hypley-live/pkg/core/providers/gemini"
	"github.com/hypley-ai/hypley-live/pkg/gateway/config"
	"github.com/hypley-ai/hypley-live/pkg/gateway/live/sessions"
	"github.com/hypley-ai/hypley-live/pkg/gateway/metrics"
	"github.com/hypley-ai/hypley-live/pkg/store"
)

type echoText struct{}

func (echoText) Complete(_ context.Context, req gemini.TextRequest) (string, error) {
	return "eco: " + req.Prompt, nil
}

func (echoText) Summarize(context.Context, string) string { return "Eco" }

func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return New(cfg, deps)
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	s.Handler().ServeHTTP(rr, httptest.NewRequest(method, path, r))
	return rr
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	rr := serve(testServer(t, Deps{}), http.MethodGet, "/does-not-exist", "")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestServer_LiveRouteAbsentWithoutDialer(t *testing.T) {
	rr := serve(testServer(t, Deps{}), http.MethodGet, "/v1/live", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestServer_Routes(t *testing.T) {
	m := metrics.New("test")
	s := testServer(t, Deps{Text: echoText{}, Metrics: m})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{name: "healthz", method: http.MethodGet, path: "/healthz", status: http.StatusOK, want: "ok"},
		{name: "readyz", method: http.MethodGet, path: "/readyz", status: http.StatusOK, want: `"ok":true`},
		{name: "chat", method: http.MethodPost, path: "/v1/chat", body: `{"message":"oi"}`, status: http.StatusOK, want: "eco: oi"},
		{name: "conversations", method: http.MethodGet, path: "/v1/conversations", status: http.StatusOK},
		{name: "messages unknown", method: http.MethodGet, path: "/v1/conversations/nope/messages", status: http.StatusNotFound},
		{name: "metrics", method: http.MethodGet, path: "/metrics", status: http.StatusOK, want: "test_requests_total"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(s, tt.method, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
			}
			if tt.want != "" && !strings.Contains(rr.Body.String(), tt.want) {
				t.Fatalf("body %q missing %q", rr.Body.String(), tt.want)
			}
		})
	}

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat", "200")); got != 1 {
		t.Errorf("chat requests=%v", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("messages", "404")); got != 1 {
		t.Errorf("messages 404=%v", got)
	}
}

func TestServer_ChatWithoutTextModel(t *testing.T) {
	rr := serve(testServer(t, Deps{}), http.MethodPost, "/v1/chat", `{"message":"oi"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_ChatPersistsToSharedStore(t *testing.T) {
	st := store.NewMemory()
	s := testServer(t, Deps{Text: echoText{}, Store: st})

	if rr := serve(s, http.MethodPost, "/v1/chat", `{"message":"oi"}`); rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	convs, err := st.Conversations(context.Background(), 10)
	if err != nil || len(convs) != 1 {
		t.Fatalf("conversations=%v err=%v", convs, err)
	}
	rr := serve(s, http.MethodGet, "/v1/conversations/"+convs[0].ID+"/messages", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "eco: oi") {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_ChatRateLimited(t *testing.T) {
	t.Setenv("HYPLEY_CHAT_RPS", "0.001")
	t.Setenv("HYPLEY_CHAT_BURST", "1")
	s := testServer(t, Deps{Text: echoText{}})

	if rr := serve(s, http.MethodPost, "/v1/chat", `{"message":"oi"}`); rr.Code != http.StatusOK {
		t.Fatalf("first status=%d", rr.Code)
	}
	rr := serve(s, http.MethodPost, "/v1/chat", `{"message":"de novo"}`)
	if rr.Code != http.StatusTooManyRequests || !strings.Contains(rr.Body.String(), "quota_error") {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_DrainFlipsReadiness(t *testing.T) {
	s := testServer(t, Deps{})

	var notified []string
	unregister := s.LiveSessions().Register("s1", sessions.Handle{
		Cancel: func() {},
		Notify: func(code, _ string) error { notified = append(notified, code); return nil },
	})

	if n := s.BeginDrain(); n != 1 {
		t.Fatalf("notified=%d", n)
	}
	if len(notified) != 1 || notified[0] != "draining" {
		t.Fatalf("notified=%v", notified)
	}
	if rr := serve(s, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz while draining status=%d", rr.Code)
	}

	unregister()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !s.WaitLiveSessions(ctx) {
		t.Fatal("expected sessions to drain")
	}
}

func TestServer_WaitCancelsStragglers(t *testing.T) {
	var logs bytes.Buffer
	s := testServer(t, Deps{Logger: slog.New(slog.NewJSONHandler(&logs, nil))})

	var unregister func()
	canceled := make(chan struct{})
	unregister = s.LiveSessions().Register("s1", sessions.Handle{
		ConversationID: "c9",
		Agent:          "programmer",
		Cancel: func() {
			close(canceled)
			go unregister()
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if s.WaitLiveSessions(ctx) {
		t.Fatal("expected grace period to expire")
	}
	select {
	case <-canceled:
	default:
		t.Fatal("straggler was not canceled")
	}
	if n := s.LiveSessions().Count(); n != 0 {
		t.Fatalf("count=%d", n)
	}
	for _, want := range []string{`"session_id":"s1"`, `"conversation_id":"c9"`, `"agent":"programmer"`} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("straggler log missing %s: %s", want, logs.String())
		}
	}
}
