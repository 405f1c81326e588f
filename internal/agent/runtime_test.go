package agent

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kestrelworks/kestrel/internal/llm"
)

// memConv is an in-memory ConversationStore for tests.
type memConv struct {
	mu   sync.Mutex
	data map[string][]llm.Message
}

func newMemConv() *memConv { return &memConv{data: make(map[string][]llm.Message)} }

func (s *memConv) Load(_ context.Context, id string) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[id], nil
}

func (s *memConv) Save(_ context.Context, id, _ string, msgs []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = msgs
	return nil
}

func TestHandleMessageReplyAndPersistence(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{textResponse("hi there")}}
	conv := newMemConv()
	rt := NewRuntime(slog.Default(), buildTestLoop(mock, nil), conv, nil, 0)

	reply, sid, err := rt.HandleMessage(context.Background(), "sess-1", "u1", "hello")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply != "hi there" {
		t.Errorf("reply = %q", reply)
	}
	if sid != "sess-1" {
		t.Errorf("session id = %q, want sess-1", sid)
	}

	saved, _ := conv.Load(context.Background(), "sess-1")
	if len(saved) != 2 {
		t.Fatalf("saved %d messages, want 2", len(saved))
	}
	if saved[0].Role != llm.RoleUser || saved[1].Role != llm.RoleAssistant {
		t.Errorf("saved roles = %s, %s", saved[0].Role, saved[1].Role)
	}
}

func TestHandleMessageResumesSession(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{
		textResponse("first answer"),
		textResponse("second answer"),
	}}
	conv := newMemConv()
	rt := NewRuntime(slog.Default(), buildTestLoop(mock, nil), conv, nil, 0)

	ctx := context.Background()
	if _, _, err := rt.HandleMessage(ctx, "sess-1", "u1", "one"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := rt.HandleMessage(ctx, "sess-1", "u1", "two"); err != nil {
		t.Fatal(err)
	}

	// Second reasoning call sees the first exchange before the new input.
	second := mock.calls[1].Messages
	if len(second) != 4 { // system + user one + assistant + user two
		t.Fatalf("second call message count = %d, want 4", len(second))
	}
	if second[1].Content != "one" || second[2].Content != "first answer" || second[3].Content != "two" {
		t.Errorf("unexpected history: %v", second)
	}
}

func TestHandleMessageHistoryWindow(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{textResponse("reply")}}
	conv := newMemConv()
	long := make([]llm.Message, 20)
	for i := range long {
		long[i] = llm.Message{Role: llm.RoleUser, Content: "old"}
	}
	conv.data["sess-1"] = long

	rt := NewRuntime(slog.Default(), buildTestLoop(mock, nil), conv, nil, 4)
	if _, _, err := rt.HandleMessage(context.Background(), "sess-1", "u1", "new"); err != nil {
		t.Fatal(err)
	}

	// system + 4 windowed + new user message
	if got := len(mock.calls[0].Messages); got != 6 {
		t.Errorf("model saw %d messages, want 6", got)
	}
}

func TestHandleMessageQueuesExtraction(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{textResponse("Paris")}}
	conv := newMemConv()

	type captured struct{ userID, userMessage, reply string }
	got := make(chan captured, 1)
	extract := func(_ context.Context, userID, userMessage, reply string) {
		got <- captured{userID, userMessage, reply}
	}

	rt := NewRuntime(slog.Default(), buildTestLoop(mock, nil), conv, extract, 0)
	ctx, cancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		_ = rt.RunExtractionWorker(ctx)
		close(workerDone)
	}()

	if _, _, err := rt.HandleMessage(context.Background(), "sess-1", "u1", "capital of France?"); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.userID != "u1" || c.userMessage != "capital of France?" || c.reply != "Paris" {
			t.Errorf("extraction saw %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("extraction never ran")
	}

	cancel()
	select {
	case <-workerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestHandleMessageGeneratesSessionID(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{textResponse("ok")}}
	conv := newMemConv()
	rt := NewRuntime(slog.Default(), buildTestLoop(mock, nil), conv, nil, 0)

	_, sid, err := rt.HandleMessage(context.Background(), "", "u1", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if sid == "" {
		t.Fatal("no session id returned")
	}
	if _, ok := conv.data[sid]; !ok {
		t.Errorf("conversation not stored under returned id %q", sid)
	}
}
