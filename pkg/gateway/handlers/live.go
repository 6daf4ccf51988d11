package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/live"
	"github.com/hypley-ai/hypley-live/pkg/core/persona"
	"github.com/hypley-ai/hypley-live/pkg/gateway/config"
	"github.com/hypley-ai/hypley-live/pkg/gateway/lifecycle"
	"github.com/hypley-ai/hypley-live/pkg/gateway/live/protocol"
	"github.com/hypley-ai/hypley-live/pkg/gateway/live/session"
	"github.com/hypley-ai/hypley-live/pkg/gateway/live/sessions"
	"github.com/hypley-ai/hypley-live/pkg/gateway/metrics"
	"github.com/hypley-ai/hypley-live/pkg/gateway/mw"
	"github.com/hypley-ai/hypley-live/pkg/store"
)

// LiveHandler handles /v1/live websocket sessions.
type LiveHandler struct {
	Config       config.Config
	Dialer       live.Dialer
	Store        store.Store
	Titles       session.TitleSummarizer
	Catalog      *persona.Catalog
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	if h.Lifecycle.IsDraining() {
		unavailable(w, r, "draining", "gateway is draining")
		return
	}
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" && !mw.OriginAllowed(h.Config.CORSAllowedOrigins, origin) {
		writeStatus(w, r, http.StatusForbidden, &core.Error{Type: core.ErrInvalidRequest, Message: "origin is not allowed", Param: "Origin"})
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("request_id", requestID(r))

	upgrader := websocket.Upgrader{
		// Origin was checked above.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	hello, err := h.readHello(conn)
	if err != nil {
		code := "bad_request"
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			code = de.Code
		}
		writeWSError(conn, code, err.Error())
		return
	}
	logger.Info("live hello", "hello", hello.RedactedForLog())

	catalog := h.Catalog
	if catalog == nil {
		catalog = persona.DefaultCatalog()
	}
	agent := hello.Agent
	if agent == "" {
		agent = persona.AgentBase
	}

	conversationID := hello.ConversationID
	var history []persona.Message
	if conversationID == "" {
		conversationID = store.NewID()
	} else if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		prior, err := h.Store.RecentMessages(ctx, conversationID, persona.HistoryWindow)
		cancel()
		if err != nil {
			logger.Warn("load live history failed", "conversation_id", conversationID, "error", err)
		}
		history = store.PersonaHistory(prior)
	}

	cfg := catalog.LiveConfig(h.Config.LiveSessionConfig(), persona.Request{
		Agent:             agent,
		CustomInstruction: hello.CustomInstruction,
		ProgrammerLevel:   hello.ProgrammerLevel,
		Summarized:        hello.Summarized,
		History:           history,
	}, hello.VoiceStyle)

	_ = conn.SetReadDeadline(time.Time{})
	relay, err := session.New(session.Dependencies{
		Conn:            conn,
		Logger:          logger,
		Dialer:          h.Dialer,
		Metrics:         h.Metrics,
		Catalog:         catalog,
		Store:           h.Store,
		Titles:          h.Titles,
		Live:            cfg,
		Hello:           hello,
		ConversationID:  conversationID,
		Agent:           agent,
		NewConversation: len(history) == 0,
		Config:          h.relayConfig(),
	})
	if err != nil {
		writeWSError(conn, "internal", "failed to initialize live session")
		return
	}

	unregister := h.LiveSessions.Register(relay.ID(), sessions.Handle{
		ConversationID: conversationID,
		Agent:          agent,
		Cancel:         relay.Cancel,
		Notify:         relay.Notify,
	})
	defer unregister()

	if err := relay.Run(); err != nil {
		logger.Warn("live session ended with error", "session_id", relay.ID(), "error", err)
	}
}

func (h LiveHandler) relayConfig() session.Config {
	return session.Config{
		MaxAudioFrameBytes:     h.Config.LiveMaxAudioFrameBytes,
		MaxJSONMessageBytes:    h.Config.LiveMaxJSONMessageBytes,
		MaxAudioFPS:            h.Config.LiveMaxAudioFPS,
		MaxAudioBytesPerSecond: h.Config.LiveMaxAudioBytesPerSecond,
		InboundBurstSeconds:    h.Config.LiveInboundBurstSeconds,
		PingInterval:           h.Config.LiveWSPingInterval,
		WriteTimeout:           h.Config.LiveWSWriteTimeout,
		ReadTimeout:            h.Config.LiveWSReadTimeout,
		MaxSessionDuration:     h.Config.LiveMaxSessionDuration,
		StoreTimeout:           h.Config.LiveStoreTimeout,
	}
}

func (h LiveHandler) readHello(conn *websocket.Conn) (protocol.ClientHello, error) {
	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}
	timeout := h.Config.LiveHandshakeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return protocol.ClientHello{}, &protocol.DecodeError{Code: "bad_request", Message: "failed to read hello"}
	}
	if messageType != websocket.TextMessage {
		return protocol.ClientHello{}, &protocol.DecodeError{Code: "bad_request", Message: "first frame must be hello"}
	}
	decoded, err := protocol.DecodeClientMessage(data)
	if err != nil {
		return protocol.ClientHello{}, err
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		return protocol.ClientHello{}, &protocol.DecodeError{Code: "bad_request", Message: "first frame must be hello", Param: "type"}
	}
	return hello, nil
}

func writeWSError(conn *websocket.Conn, code, message string) {
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Scope: "session", Code: code, Message: message, Close: true})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}
