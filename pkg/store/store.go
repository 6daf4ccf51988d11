// Package store keeps conversation history: the messages of each completed
// turn and a title per conversation. Postgres backs production; Memory backs
// tests and database-less runs.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/persona"
)

// Roles of stored messages.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one stored utterance.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	Agent          string    `json:"agent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation summarizes a thread of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the history backend.
type Store interface {
	// AppendMessage stores m, creating its conversation on first use. ID and
	// CreatedAt are filled when empty.
	AppendMessage(ctx context.Context, m Message) (Message, error)
	// RecentMessages returns up to limit of the newest messages, oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	SetTitle(ctx context.Context, conversationID, title string) error
	// Conversations lists conversations, most recently updated first.
	Conversations(ctx context.Context, limit int) ([]Conversation, error)
	Close()
}

// NewID returns a fresh conversation or message id.
func NewID() string { return uuid.NewString() }

// PersonaHistory converts stored messages into the memory block input of
// persona.Compose.
func PersonaHistory(msgs []Message) []persona.Message {
	out := make([]persona.Message, 0, len(msgs))
	for _, m := range msgs {
		role := persona.RoleModel
		if m.Role == RoleUser {
			role = persona.RoleUser
		}
		out = append(out, persona.Message{Role: role, Text: m.Text})
	}
	return out
}

func prepare(m Message, now time.Time) (Message, error) {
	if m.ConversationID == "" {
		return m, core.NewInvalidRequestErrorWithParam("conversation id is required", "conversation_id")
	}
	if m.Role != RoleUser && m.Role != RoleModel {
		return m, core.NewInvalidRequestErrorWithParam("role must be user or model", "role")
	}
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	return m, nil
}
