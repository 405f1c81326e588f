package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kestrelworks/kestrel/internal/tools"
)

// SendFunc delivers a composed message. Swapped in tests.
type SendFunc func(ctx context.Context, cfg SMTPConfig, from string, recipients []string, msg []byte) error

func splitAddresses(raw string) []string {
	var out []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func emailParams() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient addresses, comma separated.",
			},
			"cc": map[string]any{
				"type":        "string",
				"description": "CC addresses, comma separated.",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Subject line.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Message body in markdown.",
			},
		},
		"required": []string{"to", "subject", "body"},
	}
}

// RegisterTools wires send_email and compose_draft. send uses SendMail
// in production.
func RegisterTools(reg *tools.Registry, logger *slog.Logger, cfg SMTPConfig, from string, send SendFunc) {
	if send == nil {
		send = SendMail
	}

	compose := func(args map[string]any) (ComposeOptions, []string) {
		to := splitAddresses(tools.StringArg(args, "to"))
		cc := splitAddresses(tools.StringArg(args, "cc"))
		opts := ComposeOptions{
			From:    from,
			To:      to,
			Cc:      cc,
			Subject: tools.StringArg(args, "subject"),
			Body:    tools.StringArg(args, "body"),
		}
		return opts, append(append([]string{}, to...), cc...)
	}

	reg.Register(&tools.Tool{
		Name:        "send_email",
		Description: "Compose and send an email. The body is markdown; recipients receive both plain text and HTML.",
		Parameters:  emailParams(),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			opts, recipients := compose(args)
			msg, err := ComposeMessage(opts)
			if err != nil {
				return "", err
			}
			if err := send(ctx, cfg, from, recipients, msg); err != nil {
				return "", err
			}
			logger.Info("email sent", "to", recipients, "subject", opts.Subject)
			return fmt.Sprintf("sent to %s", strings.Join(recipients, ", ")), nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "compose_draft",
		Description: "Compose an email without sending it. Returns the full RFC 5322 message for review.",
		Parameters:  emailParams(),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			opts, _ := compose(args)
			msg, err := ComposeMessage(opts)
			if err != nil {
				return "", err
			}
			return string(msg), nil
		},
	})
}
