package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kestrelworks/kestrel/internal/agent"
	"github.com/kestrelworks/kestrel/internal/llm"
	"github.com/kestrelworks/kestrel/internal/tools"
)

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Chat(context.Context, string, []llm.Message, []map[string]any) (*llm.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: s.reply},
		FinishReason: "stop",
	}, nil
}

func (s *stubLLM) Ping(context.Context) error { return nil }

type stubConv struct {
	mu   sync.Mutex
	data map[string][]llm.Message
}

func (s *stubConv) Load(_ context.Context, id string) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[id], nil
}

func (s *stubConv) Save(_ context.Context, id, _ string, msgs []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = msgs
	return nil
}

func newTestServer(client llm.Client) *Server {
	logger := slog.Default()
	loop := agent.NewLoop(logger, client, tools.NewRegistry(), "test-model", 0)
	rt := agent.NewRuntime(logger, loop, &stubConv{data: map[string][]llm.Message{}}, nil, 0)
	return NewServer(logger, rt)
}

func postChat(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestChatGeneratesSessionID(t *testing.T) {
	srv := newTestServer(&stubLLM{reply: "hello!"})

	w := postChat(t, srv, `{"message": "hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "hello!" {
		t.Errorf("reply = %q", resp.Reply)
	}
	if resp.SessionID == "" {
		t.Error("session_id not generated")
	}
}

func TestChatKeepsSessionID(t *testing.T) {
	srv := newTestServer(&stubLLM{reply: "ok"})

	w := postChat(t, srv, `{"message": "hi", "session_id": "sess-42", "user_id": "u1"}`)
	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "sess-42" {
		t.Errorf("session_id = %q, want sess-42", resp.SessionID)
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	srv := newTestServer(&stubLLM{reply: "ok"})

	for name, body := range map[string]string{
		"invalid json":  `{not json`,
		"empty message": `{"message": ""}`,
	} {
		w := postChat(t, srv, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestChatReasoningFailureIs500(t *testing.T) {
	srv := newTestServer(&stubLLM{err: errors.New("model offline")})

	w := postChat(t, srv, `{"message": "hi"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "model offline") {
		t.Errorf("body = %s", w.Body)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubLLM{reply: "ok"})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestChatMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&stubLLM{reply: "ok"})

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
