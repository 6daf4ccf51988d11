package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

func TestAcquireLive_EnforcesConcurrency(t *testing.T) {
	l := New(Config{MaxLiveSessions: 1})

	first := l.AcquireLive("c1")
	if !first.Allowed {
		t.Fatal("first should be allowed")
	}
	if second := l.AcquireLive("c1"); second.Allowed {
		t.Fatal("second should be denied")
	}
	if other := l.AcquireLive("c2"); !other.Allowed {
		t.Fatal("another client has its own slots")
	}

	first.Release()
	first.Release()
	if third := l.AcquireLive("c1"); !third.Allowed {
		t.Fatal("third should be allowed after release")
	}
	if fourth := l.AcquireLive("c1"); fourth.Allowed {
		t.Fatal("double release must not free two slots")
	}
}

func TestAllowChat_Burst(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(Config{ChatRPS: 1, ChatBurst: 2})
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if d := l.AllowChat("c1"); !d.Allowed {
			t.Fatalf("turn %d denied", i)
		}
	}
	d := l.AllowChat("c1")
	if d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("third turn: %+v", d)
	}

	now = now.Add(time.Second)
	if d := l.AllowChat("c1"); !d.Allowed {
		t.Fatal("token should refill after a second")
	}
}

func TestDisabledLimits(t *testing.T) {
	var nilLimiter *Limiter
	if !nilLimiter.AllowChat("x").Allowed || !nilLimiter.AcquireLive("x").Allowed {
		t.Fatal("nil limiter admits everything")
	}
	l := New(Config{})
	for i := 0; i < 100; i++ {
		if !l.AllowChat("x").Allowed {
			t.Fatal("zero rate disables the chat limit")
		}
	}
}

func TestSweepKeepsOpenSessions(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(Config{MaxLiveSessions: 1, MaxClients: 1, IdleTTL: time.Minute})
	l.now = func() time.Time { return now }

	held := l.AcquireLive("busy")
	now = now.Add(time.Hour)
	l.AcquireLive("other")

	if again := l.AcquireLive("busy"); again.Allowed {
		t.Fatal("client with an open session must not be swept")
	}
	held.Release()
}

func TestChatMiddleware_Returns429(t *testing.T) {
	l := New(Config{ChatRPS: 0.001, ChatBurst: 1})
	h := l.Chat(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	if rec := do(); rec.Code != http.StatusNoContent {
		t.Fatalf("first status=%d", rec.Code)
	}
	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status=%d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Type != string(core.ErrQuota) {
		t.Fatalf("error type=%q", body.Error.Type)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name  string
		trust bool
		hdr   map[string]string
		want  string
	}{
		{name: "remote addr", want: "ip:192.0.2.7"},
		{name: "ignores forwarded when untrusted", hdr: map[string]string{"X-Forwarded-For": "203.0.113.9"}, want: "ip:192.0.2.7"},
		{name: "forwarded left-most", trust: true, hdr: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, want: "ip:203.0.113.9"},
		{name: "real ip wins", trust: true, hdr: map[string]string{"X-Real-IP": "198.51.100.3", "X-Forwarded-For": "203.0.113.9"}, want: "ip:198.51.100.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(Config{TrustProxyHeaders: tt.trust})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.7:4000"
			for k, v := range tt.hdr {
				req.Header.Set(k, v)
			}
			if got := l.ClientKey(req); got != tt.want {
				t.Fatalf("ClientKey=%q, want %q", got, tt.want)
			}
		})
	}
}
