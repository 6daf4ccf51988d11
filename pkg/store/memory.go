package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

// Memory is an in-process Store.
type Memory struct {
	mu            sync.RWMutex
	now           func() time.Time
	messages      map[string][]Message
	conversations map[string]*Conversation
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:           time.Now,
		messages:      make(map[string][]Message),
		conversations: make(map[string]*Conversation),
	}
}

func (s *Memory) AppendMessage(_ context.Context, m Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := prepare(m, s.now())
	if err != nil {
		return m, err
	}
	c, ok := s.conversations[m.ConversationID]
	if !ok {
		c = &Conversation{ID: m.ConversationID, CreatedAt: m.CreatedAt}
		s.conversations[m.ConversationID] = c
	}
	c.Messages++
	c.UpdatedAt = m.CreatedAt
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
	return m, nil
}

func (s *Memory) RecentMessages(_ context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *Memory) SetTitle(_ context.Context, conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return core.NewNotFoundError("conversation " + conversationID)
	}
	c.Title = title
	return nil
}

func (s *Memory) Conversations(_ context.Context, limit int) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) Close() {}
