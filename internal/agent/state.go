// Package agent implements the core reasoning loop: alternate between the
// model and tool execution until the model answers in plain text.
package agent

import "github.com/kestrelworks/kestrel/internal/llm"

// Reduce appends update to state and returns the combined slice. History
// only grows within a turn; nothing rewrites or drops earlier messages.
func Reduce(state, update []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(state)+len(update))
	out = append(out, state...)
	out = append(out, update...)
	return out
}

// SanitizeHistory drops tool-role messages whose tool_call_id does not
// match a pending assistant tool call. Windowed history can cut a
// conversation mid tool exchange, and providers reject orphan results.
func SanitizeHistory(msgs []llm.Message) []llm.Message {
	pending := make(map[string]bool)
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleAssistant:
			for _, tc := range m.ToolCalls {
				pending[tc.ID] = true
			}
		case llm.RoleTool:
			if !pending[m.ToolCallID] {
				continue
			}
			delete(pending, m.ToolCallID)
		}
		out = append(out, m)
	}
	return out
}

// Window returns the last n messages of msgs, or all of them when n <= 0
// or msgs is shorter than n.
func Window(msgs []llm.Message, n int) []llm.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
