// Package knowledge is a read-mostly reference store: document chunks
// embedded at ingest time and retrieved by similarity at answer time.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/kestrel/internal/embeddings"
)

// chunkSize is the target chunk length in bytes. Chunks break on
// paragraph boundaries, so actual sizes vary around it.
const chunkSize = 1000

// Chunk is one retrievable slice of a source document.
type Chunk struct {
	ID      uuid.UUID `json:"id"`
	Source  string    `json:"source"`
	Content string    `json:"content"`
}

// Result pairs a chunk with its similarity to the query.
type Result struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// Store holds the chunk table.
type Store struct {
	db       *sql.DB
	embedder embeddings.Embedder
}

// NewStore creates a knowledge store on an existing database
// connection.
func NewStore(db *sql.DB, embedder embeddings.Embedder) (*Store, error) {
	s := &Store{db: db, embedder: embedder}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate knowledge: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS knowledge_chunks (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_source ON knowledge_chunks(source);
	`)
	return err
}

// Ingest chunks text attributed to source, embeds each chunk, and
// inserts them. It returns the number of chunks stored.
func (s *Store) Ingest(ctx context.Context, source, text string) (int, error) {
	chunks := SplitChunks(text)
	for i, content := range chunks {
		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			return i, fmt.Errorf("embed chunk %d of %s: %w", i, source, err)
		}
		if len(vec) != s.embedder.Dimension() {
			return i, fmt.Errorf("chunk %d of %s: %w", i, source, embeddings.ErrDimensionMismatch)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO knowledge_chunks (id, source, content, embedding, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.Must(uuid.NewV7()).String(), source, content, encodeVector(vec),
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return i, fmt.Errorf("insert chunk %d of %s: %w", i, source, err)
		}
	}
	return len(chunks), nil
}

// Search returns the k chunks most similar to query.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = 3
	}
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qvec) != s.embedder.Dimension() {
		return nil, fmt.Errorf("query embedding: %w", embeddings.ErrDimensionMismatch)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, content, embedding FROM knowledge_chunks`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			id, source, content string
			blob                []byte
		)
		if err := rows.Scan(&id, &source, &content, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", id, err)
		}
		if len(vec) != len(qvec) {
			return nil, fmt.Errorf("chunk %s: %w", id, embeddings.ErrDimensionMismatch)
		}
		results = append(results, Result{
			Chunk:      Chunk{ID: uuid.MustParse(id), Source: source, Content: content},
			Similarity: float64(embeddings.CosineSimilarity(qvec, vec)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SplitChunks breaks text into roughly chunkSize pieces on paragraph
// boundaries. A paragraph longer than the target becomes its own
// chunk; blank-only input yields nothing.
func SplitChunks(text string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if c := strings.TrimSpace(current.String()); c != "" {
			chunks = append(chunks, c)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

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
