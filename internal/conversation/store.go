// Package conversation persists chat transcripts per session. What is
// stored is the answers-only projection: system, user, and assistant
// text survive; tool calls and tool results do not. A resumed session
// picks up from that projection, so the full tool trace only exists
// within a single run.
package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kestrelworks/kestrel/internal/llm"
)

// Store manages transcript persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a conversation store on an existing database
// connection.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate conversations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			messages TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);
	`)
	return err
}

// Load returns the stored transcript for sessionID, or an empty slice
// for a session never seen before.
func (s *Store) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT messages FROM conversations WHERE session_id = ?`, sessionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	var msgs []llm.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", sessionID, err)
	}
	return msgs, nil
}

// Save replaces the transcript for sessionID wholesale with the
// answers-only projection of msgs. Concurrent saves are last writer
// wins.
func (s *Store) Save(ctx context.Context, sessionID, userID string, msgs []llm.Message) error {
	raw, err := json.Marshal(AnswersOnly(msgs))
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", sessionID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (session_id, user_id, messages, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		sessionID, userID, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", sessionID, err)
	}
	return nil
}

// AnswersOnly projects a full turn trace down to what a transcript
// reader cares about: system, user, and assistant messages with text.
// Assistant tool-call shells and tool results are dropped.
func AnswersOnly(msgs []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem, llm.RoleUser:
			out = append(out, m)
		case llm.RoleAssistant:
			if m.Content == "" {
				continue
			}
			out = append(out, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	return out
}
