package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelworks/kestrel/internal/tools"
)

// RegisterTool exposes the knowledge base to the agent.
func RegisterTool(reg *tools.Registry, store *Store) {
	reg.Register(&tools.Tool{
		Name:        "search_knowledge_base",
		Description: "Search the curated knowledge base for reference material relevant to a query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum chunks to return (default 3).",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			results, err := store.Search(ctx,
				tools.StringArg(args, "query"),
				tools.IntArg(args, "limit", 3),
			)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "no relevant knowledge found", nil
			}
			var b strings.Builder
			for _, r := range results {
				fmt.Fprintf(&b, "[%s]\n%s\n\n", r.Source, r.Content)
			}
			return strings.TrimSpace(b.String()), nil
		},
	})
}
