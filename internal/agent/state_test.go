package agent

import (
	"testing"

	"github.com/kestrelworks/kestrel/internal/llm"
)

func TestReduceAppendOnly(t *testing.T) {
	state := []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
	}
	update := []llm.Message{
		{Role: llm.RoleAssistant, Content: "hi"},
	}

	got := Reduce(state, update)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Content != "hello" || got[1].Content != "hi" {
		t.Errorf("unexpected order: %v", got)
	}

	// Original slices must be untouched.
	if len(state) != 1 {
		t.Errorf("state mutated, len = %d", len(state))
	}

	// Appending to the result must not leak into state's backing array.
	got = Reduce(got, []llm.Message{{Role: llm.RoleUser, Content: "more"}})
	if len(got) != 3 {
		t.Fatalf("second Reduce len = %d, want 3", len(got))
	}
}

func TestReduceEmpty(t *testing.T) {
	if got := Reduce(nil, nil); len(got) != 0 {
		t.Errorf("Reduce(nil, nil) = %v, want empty", got)
	}
}

func TestSanitizeHistoryDropsOrphanResults(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleTool, Content: "orphan", ToolCallID: "gone"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{llm.NewToolCall("tc-1", "web_search", nil)}},
		{Role: llm.RoleTool, Content: "results", ToolCallID: "tc-1"},
		{Role: llm.RoleAssistant, Content: "answer"},
	}

	got := SanitizeHistory(msgs)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4: %v", len(got), got)
	}
	if got[0].Role != llm.RoleUser {
		t.Errorf("orphan tool result survived: %v", got[0])
	}
	if got[2].ToolCallID != "tc-1" {
		t.Errorf("matched tool result dropped: %v", got)
	}
}

func TestSanitizeHistoryRejectsDuplicateResults(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{llm.NewToolCall("tc-1", "read_page", nil)}},
		{Role: llm.RoleTool, Content: "first", ToolCallID: "tc-1"},
		{Role: llm.RoleTool, Content: "second", ToolCallID: "tc-1"},
	}

	got := SanitizeHistory(msgs)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Content != "first" {
		t.Errorf("kept wrong result: %v", got[1])
	}
}

func TestWindow(t *testing.T) {
	msgs := make([]llm.Message, 10)
	for i := range msgs {
		msgs[i] = llm.Message{Role: llm.RoleUser, Content: string(rune('a' + i))}
	}

	got := Window(msgs, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Content != "h" {
		t.Errorf("window start = %q, want h", got[0].Content)
	}

	if got := Window(msgs, 50); len(got) != 10 {
		t.Errorf("oversized window len = %d, want 10", len(got))
	}
	if got := Window(msgs, 0); len(got) != 10 {
		t.Errorf("zero window len = %d, want 10", len(got))
	}
}
