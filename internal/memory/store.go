// Package memory provides long-term semantic memory: embedded facts
// stored in sqlite and recalled by similarity.
package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/kestrel/internal/embeddings"
)

// ErrEmptyContent is returned when a caller tries to store a blank fact.
var ErrEmptyContent = errors.New("memory: empty fact content")

// Fact is one remembered statement. UserID is empty for global facts,
// which every user's recall sees.
type Fact struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Recalled pairs a fact with its similarity to the query.
type Recalled struct {
	Fact
	Similarity float64 `json:"similarity"`
}

// Store manages fact persistence and similarity recall.
type Store struct {
	db       *sql.DB
	embedder embeddings.Embedder
}

// NewStore creates a memory store on an existing database connection.
func NewStore(db *sql.DB, embedder embeddings.Embedder) (*Store, error) {
	s := &Store{db: db, embedder: embedder}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate memory: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id);
		CREATE INDEX IF NOT EXISTS idx_facts_created ON facts(created_at DESC);
	`)
	return err
}

// Store embeds content and inserts it as a fact for userID (empty for
// a global fact). Blank content is rejected; a wrong-sized embedding
// surfaces as embeddings.ErrDimensionMismatch and must be treated as a
// configuration error.
func (s *Store) Store(ctx context.Context, content, userID string) (*Fact, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed fact: %w", err)
	}
	if len(vec) != s.embedder.Dimension() {
		return nil, fmt.Errorf("fact embedding: %w", embeddings.ErrDimensionMismatch)
	}

	f := &Fact{
		ID:        uuid.Must(uuid.NewV7()),
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO facts (id, user_id, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.ID.String(), f.UserID, f.Content, encodeVector(vec),
		f.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert fact: %w", err)
	}
	return f, nil
}

// Recall returns the k facts most similar to query, scoped to userID's
// facts plus global facts. Equal similarity breaks toward the newer
// fact.
func (s *Store) Recall(ctx context.Context, query, userID string, k int) ([]Recalled, error) {
	if k <= 0 {
		k = 5
	}
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qvec) != s.embedder.Dimension() {
		return nil, fmt.Errorf("query embedding: %w", embeddings.ErrDimensionMismatch)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, embedding, created_at
		FROM facts
		WHERE user_id = '' OR user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var results []Recalled
	for rows.Next() {
		var (
			id, uid, content, createdAt string
			blob                        []byte
		)
		if err := rows.Scan(&id, &uid, &content, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("fact %s: %w", id, err)
		}
		if len(vec) != len(qvec) {
			return nil, fmt.Errorf("fact %s: %w", id, embeddings.ErrDimensionMismatch)
		}
		ts, _ := time.Parse(time.RFC3339Nano, createdAt)
		results = append(results, Recalled{
			Fact: Fact{
				ID:        uuid.MustParse(id),
				UserID:    uid,
				Content:   content,
				CreatedAt: ts,
			},
			Similarity: float64(embeddings.CosineSimilarity(qvec, vec)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored facts visible to userID.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM facts WHERE user_id = '' OR user_id = ?`, userID).Scan(&n)
	return n, err
}

// encodeVector packs float32 components little-endian for BLOB storage.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt embedding: %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
