package tools

import (
	"context"
	"strings"
	"testing"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:        "echo",
		Description: "echoes its input",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return StringArg(args, "text"), nil
		},
	})

	if got := r.Get("echo"); got == nil {
		t.Fatal("Get(echo) returned nil")
	}
	if got := r.Get("missing"); got != nil {
		t.Errorf("Get(missing) = %v, want nil", got)
	}
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name: "upper",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return strings.ToUpper(StringArg(args, "text")), nil
		},
	})

	out, err := r.Execute(context.Background(), "upper", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "HI" {
		t.Errorf("Execute = %q, want %q", out, "HI")
	}
}

func TestRegistryExecuteUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "nope", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("error = %q, want it to mention unknown tool", err)
	}
}

func TestRegistryListStableOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{Name: "zeta", Parameters: map[string]any{}})
	r.Register(&Tool{Name: "alpha", Parameters: map[string]any{}})
	r.Register(&Tool{Name: "mid", Parameters: map[string]any{}})

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List returned %d tools, want 3", len(list))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, def := range list {
		fn := def["function"].(map[string]any)
		if fn["name"] != want[i] {
			t.Errorf("List[%d] = %v, want %s", i, fn["name"], want[i])
		}
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"s": "text",
		"n": float64(7),
		"f": 1.5,
		"b": true,
	}
	if got := StringArg(args, "s"); got != "text" {
		t.Errorf("StringArg = %q", got)
	}
	if got := StringArg(args, "n"); got != "" {
		t.Errorf("StringArg on number = %q, want empty", got)
	}
	if got := IntArg(args, "n", 0); got != 7 {
		t.Errorf("IntArg = %d", got)
	}
	if got := IntArg(args, "missing", 42); got != 42 {
		t.Errorf("IntArg default = %d, want 42", got)
	}
	if got := FloatArg(args, "f", 0); got != 1.5 {
		t.Errorf("FloatArg = %v", got)
	}
	if got := BoolArg(args, "b", false); !got {
		t.Error("BoolArg = false, want true")
	}
}
