// Package ratelimit bounds how hard a single client can drive the gateway:
// text chat turns per second and concurrent live voice sessions.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/gateway/mw"
)

// Config holds per-client limits. Zero values disable the matching limit.
type Config struct {
	ChatRPS   float64
	ChatBurst int

	MaxLiveSessions int

	// TrustProxyHeaders keys clients by X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool

	// Bounds for the in-memory client table.
	MaxClients int
	IdleTTL    time.Duration
}

type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	chat     *rate.Limiter
	live     int
	lastSeen time.Time
}

// Decision is the outcome of one admission check. Release must be called
// once for an allowed live session.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Release    func()
}

func New(cfg Config) *Limiter {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10_000
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.ChatRPS > 0 && cfg.ChatBurst <= 0 {
		cfg.ChatBurst = max(1, int(cfg.ChatRPS))
	}
	return &Limiter{cfg: cfg, now: time.Now, clients: make(map[string]*client)}
}

func (l *Limiter) lookup(key string, now time.Time) *client {
	c, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= l.cfg.MaxClients {
			l.sweep(now)
		}
		c = &client{}
		if l.cfg.ChatRPS > 0 {
			c.chat = rate.NewLimiter(rate.Limit(l.cfg.ChatRPS), l.cfg.ChatBurst)
		}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c
}

// sweep drops idle clients without open live sessions. Caller holds l.mu.
func (l *Limiter) sweep(now time.Time) {
	for key, c := range l.clients {
		if c.live == 0 && now.Sub(c.lastSeen) > l.cfg.IdleTTL {
			delete(l.clients, key)
		}
	}
}

// AllowChat admits one chat turn for key.
func (l *Limiter) AllowChat(key string) Decision {
	if l == nil || l.cfg.ChatRPS <= 0 {
		return Decision{Allowed: true}
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.lookup(key, now).chat.ReserveN(now, 1)
	if !r.OK() {
		return Decision{RetryAfter: time.Second}
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return Decision{RetryAfter: d}
	}
	return Decision{Allowed: true}
}

// AcquireLive reserves a live session slot for key.
func (l *Limiter) AcquireLive(key string) Decision {
	if l == nil || l.cfg.MaxLiveSessions <= 0 {
		return Decision{Allowed: true, Release: func() {}}
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.lookup(key, now)
	if c.live >= l.cfg.MaxLiveSessions {
		return Decision{RetryAfter: 5 * time.Second}
	}
	c.live++
	var once sync.Once
	return Decision{Allowed: true, Release: func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			c.live--
			c.lastSeen = l.now()
		})
	}}
}

// Chat wraps a chat handler with the per-client turn rate.
func (l *Limiter) Chat(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := l.AllowChat(l.ClientKey(r))
		if !d.Allowed {
			reject(w, "too many chat turns", d.RetryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Live wraps the live websocket handler with the concurrent session cap.
// The slot is held until the handler returns.
func (l *Limiter) Live(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := l.AcquireLive(l.ClientKey(r))
		if !d.Allowed {
			reject(w, "too many live sessions", d.RetryAfter)
			return
		}
		defer d.Release()
		next.ServeHTTP(w, r)
	})
}

func reject(w http.ResponseWriter, msg string, retryAfter time.Duration) {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	mw.WriteJSONError(w, http.StatusTooManyRequests, core.NewQuotaError(msg, secs, nil))
}

// ClientKey identifies the caller by IP address.
func (l *Limiter) ClientKey(r *http.Request) string {
	trust := l != nil && l.cfg.TrustProxyHeaders
	if ip := clientIP(r, trust); ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}

func clientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		if raw := r.Header.Get("X-Forwarded-For"); raw != "" {
			// Left-most entry is the original client.
			if ip := parseIP(strings.Split(raw, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	return parseIP(r.RemoteAddr)
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
