package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core/live"
	"github.com/hypley-ai/hypley-live/pkg/core/persona"
	"github.com/hypley-ai/hypley-live/pkg/gateway/config"
	"github.com/hypley-ai/hypley-live/pkg/gateway/handlers"
	"github.com/hypley-ai/hypley-live/pkg/gateway/lifecycle"
	"github.com/hypley-ai/hypley-live/pkg/gateway/live/session"
	"github.com/hypley-ai/hypley-live/pkg/gateway/live/sessions"
	"github.com/hypley-ai/hypley-live/pkg/gateway/metrics"
	"github.com/hypley-ai/hypley-live/pkg/gateway/mw"
	"github.com/hypley-ai/hypley-live/pkg/gateway/ratelimit"
	"github.com/hypley-ai/hypley-live/pkg/store"
)

// Deps are the collaborators the gateway routes are built from. Nil Store
// and Catalog fall back to the in-memory store and the embedded catalog.
// A nil Text disables /v1/chat and a nil Dialer disables /v1/live.
type Deps struct {
	Dialer  live.Dialer
	Text    handlers.TextCompleter
	Titles  session.TitleSummarizer
	Store   store.Store
	Catalog *persona.Catalog
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Server struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger
	mux    *http.ServeMux

	lifecycle *lifecycle.Lifecycle
	tracker   *sessions.Tracker
	limiter   *ratelimit.Limiter
}

func New(cfg config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Store == nil {
		deps.Store = store.NewMemory()
	}
	if deps.Catalog == nil {
		deps.Catalog = persona.DefaultCatalog()
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger,
		mux:       http.NewServeMux(),
		lifecycle: &lifecycle.Lifecycle{},
		tracker:   sessions.NewTracker(),
		limiter: ratelimit.New(ratelimit.Config{
			ChatRPS:           cfg.ChatRPS,
			ChatBurst:         cfg.ChatBurst,
			MaxLiveSessions:   cfg.MaxLiveSessions,
			TrustProxyHeaders: cfg.TrustProxyHeaders,
		}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("/healthz", "healthz", handlers.HealthHandler{})
	s.handle("/readyz", "readyz", handlers.ReadyHandler{
		Config:       s.cfg,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.tracker,
	})

	if s.deps.Dialer != nil {
		s.handle("/v1/live", "live", s.limiter.Live(handlers.LiveHandler{
			Config:       s.cfg,
			Dialer:       s.deps.Dialer,
			Store:        s.deps.Store,
			Titles:       s.deps.Titles,
			Catalog:      s.deps.Catalog,
			Metrics:      s.deps.Metrics,
			Logger:       s.logger,
			Lifecycle:    s.lifecycle,
			LiveSessions: s.tracker,
		}))
	}

	s.handle("/v1/chat", "chat", s.limiter.Chat(handlers.ChatHandler{
		Config:  s.cfg,
		Text:    s.deps.Text,
		Store:   s.deps.Store,
		Catalog: s.deps.Catalog,
		Logger:  s.logger,
	}))

	history := handlers.HistoryHandler{Store: s.deps.Store}
	s.handle("GET /v1/conversations", "conversations", http.HandlerFunc(history.Conversations))
	s.handle("GET /v1/conversations/{id}/messages", "messages", http.HandlerFunc(history.Messages))

	if s.deps.Metrics != nil {
		s.mux.Handle("/metrics", s.deps.Metrics.Handler())
	}
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) handle(pattern, endpoint string, h http.Handler) {
	s.mux.Handle(pattern, instrument(s.deps.Metrics, endpoint, h))
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg.CORSAllowedOrigins, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Lifecycle exposes readiness so callers can register dependency checks.
func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.lifecycle }

// LiveSessions exposes the tracker of open relays.
func (s *Server) LiveSessions() *sessions.Tracker { return s.tracker }

// BeginDrain flips readiness and tells connected browsers the gateway is
// going away. It returns the number of relays notified.
func (s *Server) BeginDrain() int {
	s.lifecycle.SetDraining(true)
	return s.tracker.NotifyAll("draining", "gateway is shutting down")
}

// WaitLiveSessions blocks until every relay ended or ctx is done. Relays still
// open when ctx expires are cancelled.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	if s.tracker.Wait(ctx) {
		return true
	}
	for _, info := range s.tracker.List() {
		s.logger.Warn("canceling live session after grace period",
			"session_id", info.ID,
			"conversation_id", info.ConversationID,
			"agent", info.Agent,
			"age", time.Since(info.StartedAt).Round(time.Second),
		)
	}
	canceled := s.tracker.CancelAll()
	s.logger.Warn("live sessions canceled after grace period", "count", canceled)
	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.tracker.Wait(waitCtx)
	return false
}

// instrument records request count and latency per endpoint. Upgraded
// websocket requests are timed for the lifetime of the relay.
func instrument(m *metrics.Metrics, endpoint string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := mw.NewStatusWriter(w)
		next.ServeHTTP(sw, r)
		m.RecordRequest(endpoint, sw.Status, time.Since(start))
	})
}
