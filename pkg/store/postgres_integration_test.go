package store

import (
	"context"
	"os"
	"testing"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

func setupPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("HYPLEY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HYPLEY_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, url, 2)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestIntegration_PostgresHistory(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	conv := "it-" + NewID()

	for _, text := range []string{"oi", "olá", "tudo bem?"} {
		role := RoleUser
		if text == "olá" {
			role = RoleModel
		}
		if _, err := s.AppendMessage(ctx, Message{ConversationID: conv, Role: role, Text: text}); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	recent, err := s.RecentMessages(ctx, conv, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Text != "olá" || recent[1].Text != "tudo bem?" {
		t.Errorf("RecentMessages() = %+v", recent)
	}

	if err := s.SetTitle(ctx, conv, "Saudações"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTitle(ctx, "it-missing-"+NewID(), "x"); !core.IsType(err, core.ErrNotFound) {
		t.Errorf("SetTitle() missing = %v", err)
	}

	convs, err := s.Conversations(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) == 0 || convs[0].ID != conv || convs[0].Messages != 3 {
		t.Errorf("Conversations()[0] = %+v", convs)
	}
}
