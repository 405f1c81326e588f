package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth = %q", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["model"] != "test-model" {
			t.Errorf("model = %v", req["model"])
		}
		msgs := req["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("sent %d messages", len(msgs))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "test-model",
			"created": 1700000000,
			"choices": [{"message": {"role": "assistant", "content": "Lisbon"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "sk-test", 0.2)
	resp, err := c.Chat(context.Background(), "test-model", []Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "capital of Portugal?"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message.Content != "Lisbon" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestChatDecodesToolCallArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "tc-1",
						"type": "function",
						"function": {"name": "web_search", "arguments": "{\"query\": \"falcons\", \"count\": 3}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "", 0)
	resp, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "x"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	calls := resp.Message.ToolCalls
	if len(calls) != 1 {
		t.Fatalf("tool calls = %d", len(calls))
	}
	if calls[0].Function.Name != "web_search" {
		t.Errorf("name = %q", calls[0].Function.Name)
	}
	if calls[0].Function.Arguments["query"] != "falcons" {
		t.Errorf("arguments = %v", calls[0].Function.Arguments)
	}
	if calls[0].Function.Arguments["count"] != float64(3) {
		t.Errorf("count = %v", calls[0].Function.Arguments["count"])
	}
}

func TestChatMalformedArgumentsPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{
				"message": {
					"role": "assistant",
					"tool_calls": [{
						"id": "tc-1",
						"type": "function",
						"function": {"name": "web_search", "arguments": "{broken"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "", 0)
	resp, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "x"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	args := resp.Message.ToolCalls[0].Function.Arguments
	if args["_raw"] != "{broken" {
		t.Errorf("malformed arguments lost: %v", args)
	}
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "", 0)
	_, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "x"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestToWireEncodesArguments(t *testing.T) {
	wire := toWire([]Message{{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			NewToolCall("tc-1", "fill", map[string]any{"selector": "#q", "value": "hi"}),
		},
	}})
	if len(wire) != 1 || len(wire[0].ToolCalls) != 1 {
		t.Fatalf("wire = %+v", wire)
	}
	raw := wire[0].ToolCalls[0].Function.Arguments
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("arguments not valid JSON: %q", raw)
	}
	if decoded["selector"] != "#q" {
		t.Errorf("decoded = %v", decoded)
	}
}
