package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelworks/kestrel/internal/tools"
)

// RegisterTool exposes the fetcher as the get_page tool.
func RegisterTool(reg *tools.Registry, f *Fetcher) {
	reg.Register(&tools.Tool{
		Name:        "get_page",
		Description: "Fetch a URL once and return its readable text. No session, no JavaScript; use the browser tools for interactive pages.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Address to fetch.",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": "Truncate extracted text to this many characters.",
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			page, err := f.Fetch(ctx,
				tools.StringArg(args, "url"),
				tools.IntArg(args, "max_chars", 0),
			)
			if err != nil {
				return "", err
			}
			var b strings.Builder
			if page.Title != "" {
				fmt.Fprintf(&b, "Title: %s\n\n", page.Title)
			}
			b.WriteString(page.Content)
			if page.Truncated {
				b.WriteString("\n[truncated]")
			}
			return b.String(), nil
		},
	})
}
