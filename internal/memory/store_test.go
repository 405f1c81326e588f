package memory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kestrelworks/kestrel/internal/embeddings"
)

// fakeEmbedder maps known phrases to fixed vectors so similarity is
// deterministic without a real embeddings service.
type fakeEmbedder struct {
	dim    int
	vecs   map[string][]float32
	fallbk []float32
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		dim: 3,
		vecs: map[string][]float32{
			"likes coffee":        {1, 0, 0},
			"coffee preferences?": {0.9, 0.1, 0},
			"owns a dog":          {0, 1, 0},
			"pets?":               {0, 0.9, 0.1},
		},
		fallbk: []float32{0.1, 0.1, 0.1},
	}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return f.fallbk, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

// wrongDimEmbedder returns vectors that do not match its declared
// dimension.
type wrongDimEmbedder struct{}

func (wrongDimEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 2}, nil
}
func (wrongDimEmbedder) Dimension() int { return 3 }

func newTestStore(t *testing.T, emb embeddings.Embedder) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewStore(db, emb)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStoreRejectsEmptyContent(t *testing.T) {
	s := newTestStore(t, newFakeEmbedder())
	for _, content := range []string{"", "   ", "\n\t"} {
		if _, err := s.Store(context.Background(), content, "u1"); !errors.Is(err, ErrEmptyContent) {
			t.Errorf("Store(%q) = %v, want ErrEmptyContent", content, err)
		}
	}
}

func TestStoreThenRecall(t *testing.T) {
	s := newTestStore(t, newFakeEmbedder())
	ctx := context.Background()

	if _, err := s.Store(ctx, "likes coffee", "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Store(ctx, "owns a dog", "u1"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recall(ctx, "coffee preferences?", "u1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("recalled %d facts, want 1", len(got))
	}
	if got[0].Content != "likes coffee" {
		t.Errorf("recalled %q, want %q", got[0].Content, "likes coffee")
	}
	if got[0].Similarity <= 0.9 {
		t.Errorf("similarity = %v, want > 0.9", got[0].Similarity)
	}
}

func TestRecallScopesToUserPlusGlobal(t *testing.T) {
	s := newTestStore(t, newFakeEmbedder())
	ctx := context.Background()

	if _, err := s.Store(ctx, "likes coffee", "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Store(ctx, "owns a dog", "u2"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Store(ctx, "office door code is 4812", ""); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recall(ctx, "pets?", "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range got {
		if r.Content == "owns a dog" {
			t.Error("recall leaked another user's fact")
		}
	}
	foundGlobal := false
	for _, r := range got {
		if r.Content == "office door code is 4812" {
			foundGlobal = true
		}
	}
	if !foundGlobal {
		t.Error("recall missed the global fact")
	}
}

func TestRecallTieBreaksOnRecency(t *testing.T) {
	s := newTestStore(t, newFakeEmbedder())
	ctx := context.Background()

	// Identical embeddings, so similarity ties exactly.
	older, err := s.Store(ctx, "first noted thing", "u1")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	newer, err := s.Store(ctx, "second noted thing", "u1")
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Recall(ctx, "anything", "u1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("recalled %d facts, want 2", len(got))
	}
	if got[0].ID != newer.ID {
		t.Errorf("first = %s, want newer fact %s (older %s)", got[0].ID, newer.ID, older.ID)
	}
}

func TestDimensionMismatchFailsFast(t *testing.T) {
	s := newTestStore(t, wrongDimEmbedder{})
	ctx := context.Background()

	if _, err := s.Store(ctx, "anything at all", "u1"); !errors.Is(err, embeddings.ErrDimensionMismatch) {
		t.Errorf("Store = %v, want ErrDimensionMismatch", err)
	}
	if _, err := s.Recall(ctx, "anything", "u1", 5); !errors.Is(err, embeddings.ErrDimensionMismatch) {
		t.Errorf("Recall = %v, want ErrDimensionMismatch", err)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.14159, 0}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("component %d = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("decodeVector accepted a truncated blob")
	}
}
