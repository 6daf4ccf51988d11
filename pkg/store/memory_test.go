package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

func newTestMemory() *Memory {
	m := NewMemory()
	base := time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC)
	n := 0
	m.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return m
}

func TestMemory_AppendAndRecent(t *testing.T) {
	s := newTestMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleModel
		}
		got, err := s.AppendMessage(ctx, Message{ConversationID: "c1", Role: role, Text: fmt.Sprint(i)})
		if err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
		if got.ID == "" || got.CreatedAt.IsZero() {
			t.Fatalf("AppendMessage() did not fill id and time: %+v", got)
		}
	}

	recent, err := s.RecentMessages(ctx, "c1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 || recent[0].Text != "2" || recent[2].Text != "4" {
		t.Errorf("RecentMessages() = %+v, want messages 2..4 oldest first", recent)
	}

	all, _ := s.RecentMessages(ctx, "c1", 0)
	if len(all) != 5 {
		t.Errorf("RecentMessages(limit 0) = %d, want 5", len(all))
	}
	none, _ := s.RecentMessages(ctx, "missing", 10)
	if len(none) != 0 {
		t.Errorf("unknown conversation returned %d messages", len(none))
	}
}

func TestMemory_AppendValidation(t *testing.T) {
	s := newTestMemory()
	tests := []Message{
		{Role: RoleUser, Text: "x"},
		{ConversationID: "c1", Role: "assistant", Text: "x"},
	}
	for _, m := range tests {
		if _, err := s.AppendMessage(context.Background(), m); !core.IsType(err, core.ErrInvalidRequest) {
			t.Errorf("AppendMessage(%+v) error = %v, want invalid_request_error", m, err)
		}
	}
}

func TestMemory_TitlesAndListing(t *testing.T) {
	s := newTestMemory()
	ctx := context.Background()

	if err := s.SetTitle(ctx, "nope", "x"); !core.IsType(err, core.ErrNotFound) {
		t.Fatalf("SetTitle() on missing conversation = %v", err)
	}

	_, _ = s.AppendMessage(ctx, Message{ConversationID: "old", Role: RoleUser, Text: "a"})
	_, _ = s.AppendMessage(ctx, Message{ConversationID: "new", Role: RoleUser, Text: "b"})
	_, _ = s.AppendMessage(ctx, Message{ConversationID: "new", Role: RoleModel, Text: "c"})
	if err := s.SetTitle(ctx, "new", "Planos"); err != nil {
		t.Fatal(err)
	}

	convs, err := s.Conversations(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 || convs[0].ID != "new" {
		t.Fatalf("Conversations() = %+v, want newest first", convs)
	}
	if convs[0].Title != "Planos" || convs[0].Messages != 2 {
		t.Errorf("conversation = %+v", convs[0])
	}

	limited, _ := s.Conversations(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("Conversations(1) = %d", len(limited))
	}
}
