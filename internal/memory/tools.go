package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelworks/kestrel/internal/tools"
)

// RegisterTools exposes the memory store to the agent.
func RegisterTools(reg *tools.Registry, store *Store) {
	reg.Register(&tools.Tool{
		Name:        "recall_memory",
		Description: "Search long-term memory for facts relevant to a query. Use before answering questions about the user's preferences, history, or prior conversations.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for.",
				},
				"user_id": map[string]any{
					"type":        "string",
					"description": "User whose memories to search.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum facts to return (default 5).",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			results, err := store.Recall(ctx,
				tools.StringArg(args, "query"),
				tools.StringArg(args, "user_id"),
				tools.IntArg(args, "limit", 5),
			)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "no relevant memories found", nil
			}
			var b strings.Builder
			for _, r := range results {
				fmt.Fprintf(&b, "- %s (relevance %.2f)\n", r.Content, r.Similarity)
			}
			return b.String(), nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "store_memory",
		Description: "Save a durable fact about the user to long-term memory. Phrase it as a short standalone statement.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The fact to remember.",
				},
				"user_id": map[string]any{
					"type":        "string",
					"description": "User the fact belongs to; omit for a global fact.",
				},
			},
			"required": []string{"content"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			f, err := store.Store(ctx,
				tools.StringArg(args, "content"),
				tools.StringArg(args, "user_id"),
			)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("remembered: %s", f.Content), nil
		},
	})
}
