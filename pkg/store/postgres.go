package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres is a Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Postgres) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err == nil {
		slog.Info("database migrated", "version", version)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) AppendMessage(ctx context.Context, m Message) (Message, error) {
	m, err := prepare(m, time.Now().UTC())
	if err != nil {
		return m, err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, messages, created_at, updated_at)
			VALUES ($1, 1, $2, $2)
			ON CONFLICT (id) DO UPDATE
			SET messages = conversations.messages + 1, updated_at = EXCLUDED.updated_at`,
			m.ConversationID, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, role, text, agent, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.ConversationID, m.Role, m.Text, m.Agent, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	return m, err
}

func (s *Postgres) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, conversation_id, role, text, agent, created_at FROM (
			SELECT * FROM messages WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2
		) recent ORDER BY created_at, id`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Text, &m.Agent, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return out, nil
}

func (s *Postgres) SetTitle(ctx context.Context, conversationID, title string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE conversations SET title = $2 WHERE id = $1`, conversationID, title)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("conversation " + conversationID)
	}
	return nil
}

func (s *Postgres) Conversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, messages, created_at, updated_at FROM conversations
		ORDER BY updated_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Conversation])
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scan conversations: %w", err)
	}
	return out, nil
}
