// Package userctx stores per-user profile notes the agent can consult
// at the start of a conversation.
package userctx

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kestrelworks/kestrel/internal/tools"
)

// Store manages the user context table.
type Store struct {
	db *sql.DB
}

// NewStore creates a user context store on an existing database
// connection.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate user context: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS user_context (
			user_id TEXT PRIMARY KEY,
			context TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

// Get returns the stored context for userID, or "" when none exists.
func (s *Store) Get(ctx context.Context, userID string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT context FROM user_context WHERE user_id = ?`, userID).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get user context: %w", err)
	}
	return value, nil
}

// Set replaces the context for userID.
func (s *Store) Set(ctx context.Context, userID, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_context (user_id, context, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			context = excluded.context,
			updated_at = excluded.updated_at`,
		userID, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set user context: %w", err)
	}
	return nil
}

// RegisterTool exposes the lookup to the agent.
func RegisterTool(reg *tools.Registry, store *Store) {
	reg.Register(&tools.Tool{
		Name:        "get_user_context",
		Description: "Fetch the stored profile notes for a user: who they are, standing preferences, current situation.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "string",
					"description": "User to look up.",
				},
			},
			"required": []string{"user_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			value, err := store.Get(ctx, tools.StringArg(args, "user_id"))
			if err != nil {
				return "", err
			}
			if value == "" {
				return "no context stored for this user", nil
			}
			return value, nil
		},
	})
}
