package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/store"
)

// TitleSummarizer names a conversation from its first exchange.
type TitleSummarizer interface {
	Summarize(ctx context.Context, text string) string
}

type completedTurn struct {
	user, model string
	agent       string
}

// turnRecorder persists completed turns off the receive goroutine. The first
// stored turn of a new conversation also sets its title.
type turnRecorder struct {
	store          store.Store
	titles         TitleSummarizer
	logger         *slog.Logger
	conversationID string
	needsTitle     bool
	timeout        time.Duration
}

func (r *turnRecorder) run(ctx context.Context, turns <-chan completedTurn) {
	for turn := range turns {
		r.record(ctx, turn)
	}
}

func (r *turnRecorder) record(parent context.Context, turn completedTurn) {
	if r.store == nil {
		return
	}
	user := strings.TrimSpace(turn.user)
	model := strings.TrimSpace(turn.model)
	if user == "" && model == "" {
		return
	}

	// The connection may already be gone; the turn still belongs in history.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.timeout)
	defer cancel()

	for _, m := range []store.Message{
		{ConversationID: r.conversationID, Role: store.RoleUser, Text: user},
		{ConversationID: r.conversationID, Role: store.RoleModel, Text: model, Agent: turn.agent},
	} {
		if m.Text == "" {
			continue
		}
		if _, err := r.store.AppendMessage(ctx, m); err != nil {
			r.logger.Warn("store turn failed", "conversation_id", r.conversationID, "role", m.Role, "error", err)
			return
		}
	}

	if !r.needsTitle || r.titles == nil {
		return
	}
	r.needsTitle = false
	title := r.titles.Summarize(ctx, strings.TrimSpace(user+"\n"+model))
	if err := r.store.SetTitle(ctx, r.conversationID, title); err != nil {
		r.logger.Warn("set title failed", "conversation_id", r.conversationID, "error", err)
	}
}
