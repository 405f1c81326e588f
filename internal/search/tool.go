package search

import (
	"context"
	"fmt"

	"github.com/kestrelworks/kestrel/internal/tools"
)

// RegisterTool exposes the manager as the web_search tool.
func RegisterTool(reg *tools.Registry, mgr *Manager) {
	reg.Register(&tools.Tool{
		Name:        "web_search",
		Description: "Search the web. Use for current events and facts you are unsure of.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query.",
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "Maximum results to return (default 5).",
				},
				"provider": map[string]any{
					"type":        "string",
					"description": "Specific provider to use; omit for the default.",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query := tools.StringArg(args, "query")
			if query == "" {
				return "", fmt.Errorf("web_search: query is required")
			}
			opts := Options{Count: tools.IntArg(args, "count", 0)}

			var (
				results []Result
				err     error
			)
			if provider := tools.StringArg(args, "provider"); provider != "" {
				results, err = mgr.SearchWith(ctx, provider, query, opts)
			} else {
				results, err = mgr.Search(ctx, query, opts)
			}
			if err != nil {
				return "", err
			}
			return FormatResults(results, opts.Count), nil
		},
	})
}
