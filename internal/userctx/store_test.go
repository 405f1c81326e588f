package userctx

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewStore(db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGetUnknownUser(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("Get = %q, want empty", got)
	}
}

func TestSetGetOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "u1", "prefers short answers"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(ctx, "u1"); got != "prefers short answers" {
		t.Errorf("Get = %q", got)
	}

	if err := s.Set(ctx, "u1", "prefers detailed answers"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(ctx, "u1"); got != "prefers detailed answers" {
		t.Errorf("Get after overwrite = %q", got)
	}
}
