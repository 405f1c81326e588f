package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/kestrel/internal/tools"
)

func sessionParam() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Browser session id. Reuse the id from open_url to stay in the same tab.",
	}
}

func selectorParam() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "CSS selector for the target element.",
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// RegisterTools wires every browser operation into the registry.
// Screenshots land under screenshotDir.
func RegisterTools(reg *tools.Registry, m *Manager, screenshotDir string) {
	// get looks up the live session for a tool call.
	get := func(args map[string]any) (*Session, error) {
		return m.Get(tools.StringArg(args, "session_id"))
	}

	reg.Register(&tools.Tool{
		Name:        "open_url",
		Description: "Open a URL in a browser session. Creates the session if the id is new; returns the session id for follow-up tools.",
		Parameters: objectSchema(map[string]any{
			"url":        map[string]any{"type": "string", "description": "Address to load."},
			"session_id": sessionParam(),
		}, "url"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id := tools.StringArg(args, "session_id")
			if id == "" {
				id = uuid.NewString()
			}
			s, err := m.Session(id)
			if err != nil {
				return "", err
			}
			if err := s.Navigate(ctx, tools.StringArg(args, "url")); err != nil {
				return "", err
			}
			title, _ := s.Title(ctx)
			return fmt.Sprintf("opened %q in session %s", title, id), nil
		},
	})

	type navOp struct {
		name, desc string
		fn         func(*Session, context.Context) error
	}
	for _, op := range []navOp{
		{"go_back", "Navigate back in the session's history.", (*Session).Back},
		{"go_forward", "Navigate forward in the session's history.", (*Session).Forward},
		{"reload_page", "Reload the current page.", (*Session).Reload},
		{"scroll_to_bottom", "Scroll to the bottom of the page.", (*Session).ScrollBottom},
		{"scroll_to_top", "Scroll to the top of the page.", (*Session).ScrollTop},
		{"press_enter", "Press the Enter key in the focused element.", (*Session).PressEnter},
	} {
		op := op
		reg.Register(&tools.Tool{
			Name:        op.name,
			Description: op.desc,
			Parameters:  objectSchema(map[string]any{"session_id": sessionParam()}, "session_id"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				s, err := get(args)
				if err != nil {
					return "", err
				}
				if err := op.fn(s, ctx); err != nil {
					return "", err
				}
				return "ok", nil
			},
		})
	}

	type readOp struct {
		name, desc string
		fn         func(*Session, context.Context) (string, error)
	}
	for _, op := range []readOp{
		{"page_content", "Return the visible text of the current page.", (*Session).Content},
		{"get_title", "Return the current page title.", (*Session).Title},
		{"get_url", "Return the current page URL.", (*Session).URL},
		{"selector_hints", "List visible interactive elements with candidate CSS selectors, one per line. Use this to discover valid targets before clicking or filling.", (*Session).SelectorHints},
	} {
		op := op
		reg.Register(&tools.Tool{
			Name:        op.name,
			Description: op.desc,
			Parameters:  objectSchema(map[string]any{"session_id": sessionParam()}, "session_id"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				s, err := get(args)
				if err != nil {
					return "", err
				}
				return op.fn(s, ctx)
			},
		})
	}

	type selOp struct {
		name, desc string
		fn         func(*Session, context.Context, string) error
	}
	for _, op := range []selOp{
		{"click", "Click an element.", (*Session).Click},
		{"double_click", "Double-click an element.", (*Session).DoubleClick},
		{"right_click", "Right-click an element.", (*Session).RightClick},
		{"hover", "Move the pointer onto an element without clicking.", (*Session).Hover},
		{"check", "Ensure a checkbox is checked.", (*Session).Check},
		{"uncheck", "Ensure a checkbox is unchecked.", (*Session).Uncheck},
	} {
		op := op
		reg.Register(&tools.Tool{
			Name:        op.name,
			Description: op.desc,
			Parameters: objectSchema(map[string]any{
				"session_id": sessionParam(),
				"selector":   selectorParam(),
			}, "session_id", "selector"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				s, err := get(args)
				if err != nil {
					return "", err
				}
				if err := op.fn(s, ctx, tools.StringArg(args, "selector")); err != nil {
					return "", err
				}
				return "ok", nil
			},
		})
	}

	type selReadOp struct {
		name, desc string
		fn         func(*Session, context.Context, string) (string, error)
	}
	for _, op := range []selReadOp{
		{"get_element_text", "Return the text content of the first element matching a selector.", (*Session).ElementText},
		{"get_input_value", "Return the current value of an input or textarea.", (*Session).InputValue},
	} {
		op := op
		reg.Register(&tools.Tool{
			Name:        op.name,
			Description: op.desc,
			Parameters: objectSchema(map[string]any{
				"session_id": sessionParam(),
				"selector":   selectorParam(),
			}, "session_id", "selector"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				s, err := get(args)
				if err != nil {
					return "", err
				}
				return op.fn(s, ctx, tools.StringArg(args, "selector"))
			},
		})
	}

	reg.Register(&tools.Tool{
		Name:        "fill",
		Description: "Clear an input and type a value into it.",
		Parameters: objectSchema(map[string]any{
			"session_id": sessionParam(),
			"selector":   selectorParam(),
			"value":      map[string]any{"type": "string", "description": "Text to type."},
		}, "session_id", "selector", "value"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, err := get(args)
			if err != nil {
				return "", err
			}
			if err := s.Fill(ctx, tools.StringArg(args, "selector"), tools.StringArg(args, "value")); err != nil {
				return "", err
			}
			return "ok", nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "type_text",
		Description: "Type text into the currently focused element.",
		Parameters: objectSchema(map[string]any{
			"session_id": sessionParam(),
			"text":       map[string]any{"type": "string", "description": "Text to type."},
		}, "session_id", "text"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, err := get(args)
			if err != nil {
				return "", err
			}
			if err := s.TypeText(ctx, tools.StringArg(args, "text")); err != nil {
				return "", err
			}
			return "ok", nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "press_key",
		Description: "Press a named key (enter, tab, escape, arrowdown, ...) or a single character.",
		Parameters: objectSchema(map[string]any{
			"session_id": sessionParam(),
			"key":        map[string]any{"type": "string", "description": "Key name."},
		}, "session_id", "key"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, err := get(args)
			if err != nil {
				return "", err
			}
			if err := s.PressKey(ctx, tools.StringArg(args, "key")); err != nil {
				return "", err
			}
			return "ok", nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "select_option",
		Description: "Select an option in a dropdown by value or visible label.",
		Parameters: objectSchema(map[string]any{
			"session_id": sessionParam(),
			"selector":   selectorParam(),
			"value":      map[string]any{"type": "string", "description": "Option value or label."},
		}, "session_id", "selector", "value"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, err := get(args)
			if err != nil {
				return "", err
			}
			if err := s.SelectOption(ctx, tools.StringArg(args, "selector"), tools.StringArg(args, "value")); err != nil {
				return "", err
			}
			return "ok", nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "wait",
		Description: "Pause for a number of seconds (max 30) to let the page settle.",
		Parameters: objectSchema(map[string]any{
			"session_id": sessionParam(),
			"seconds":    map[string]any{"type": "number", "description": "Seconds to wait."},
		}, "session_id", "seconds"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, err := get(args)
			if err != nil {
				return "", err
			}
			if err := s.Wait(ctx, tools.FloatArg(args, "seconds", 1)); err != nil {
				return "", err
			}
			return "ok", nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "wait_for_selector",
		Description: "Wait until an element is visible, up to a timeout.",
		Parameters: objectSchema(map[string]any{
			"session_id":      sessionParam(),
			"selector":        selectorParam(),
			"timeout_seconds": map[string]any{"type": "number", "description": "Give up after this many seconds (default 30)."},
		}, "session_id", "selector"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, err := get(args)
			if err != nil {
				return "", err
			}
			timeout := time.Duration(tools.FloatArg(args, "timeout_seconds", 30) * float64(time.Second))
			if err := s.WaitForSelector(ctx, tools.StringArg(args, "selector"), timeout); err != nil {
				return "", err
			}
			return "ok", nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "scroll",
		Description: "Scroll the page vertically by a pixel amount; negative scrolls up.",
		Parameters: objectSchema(map[string]any{
			"session_id": sessionParam(),
			"pixels":     map[string]any{"type": "integer", "description": "Pixels to scroll."},
		}, "session_id", "pixels"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, err := get(args)
			if err != nil {
				return "", err
			}
			if err := s.Scroll(ctx, tools.IntArg(args, "pixels", 500)); err != nil {
				return "", err
			}
			return "ok", nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "screenshot",
		Description: "Capture the visible viewport as a PNG file and return its path.",
		Parameters:  objectSchema(map[string]any{"session_id": sessionParam()}, "session_id"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, err := get(args)
			if err != nil {
				return "", err
			}
			buf, err := s.Screenshot(ctx)
			if err != nil {
				return "", err
			}
			if err := os.MkdirAll(screenshotDir, 0o755); err != nil {
				return "", fmt.Errorf("screenshot dir: %w", err)
			}
			path := filepath.Join(screenshotDir, fmt.Sprintf("shot-%d.png", time.Now().UnixMilli()))
			if err := os.WriteFile(path, buf, 0o644); err != nil {
				return "", fmt.Errorf("write screenshot: %w", err)
			}
			return path, nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "close_session",
		Description: "Close a browser session and free its tab.",
		Parameters:  objectSchema(map[string]any{"session_id": sessionParam()}, "session_id"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if err := m.Close(tools.StringArg(args, "session_id")); err != nil {
				return "", err
			}
			return "closed", nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "login",
		Description: "Log in on the current page: fill the username and password fields, click submit, wait for the page to change, and report the result.",
		Parameters: objectSchema(map[string]any{
			"session_id":        sessionParam(),
			"username_selector": map[string]any{"type": "string", "description": "Selector for the username field."},
			"password_selector": map[string]any{"type": "string", "description": "Selector for the password field."},
			"submit_selector":   map[string]any{"type": "string", "description": "Selector for the submit button."},
			"username":          map[string]any{"type": "string"},
			"password":          map[string]any{"type": "string"},
		}, "session_id", "username_selector", "password_selector", "submit_selector", "username", "password"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, err := get(args)
			if err != nil {
				return "", err
			}
			if err := s.Fill(ctx, tools.StringArg(args, "username_selector"), tools.StringArg(args, "username")); err != nil {
				return "", fmt.Errorf("username field: %w", err)
			}
			if err := s.Fill(ctx, tools.StringArg(args, "password_selector"), tools.StringArg(args, "password")); err != nil {
				return "", fmt.Errorf("password field: %w", err)
			}
			if err := s.Click(ctx, tools.StringArg(args, "submit_selector")); err != nil {
				return "", fmt.Errorf("submit: %w", err)
			}
			if err := s.Wait(ctx, 3); err != nil {
				return "", err
			}
			title, err := s.Title(ctx)
			if err != nil {
				return "", err
			}
			url, err := s.URL(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("now on %q (%s)", title, url), nil
		},
	})
}
