package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen:
  port: 9090
llm:
  model: test/model
  api_key: secret
agent:
  max_turns: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Listen.Port)
	}
	if cfg.LLM.Model != "test/model" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.Agent.MaxTurns != 5 {
		t.Errorf("max turns = %d, want 5", cfg.Agent.MaxTurns)
	}
	// Unset fields keep their defaults.
	if cfg.Embeddings.Dimension != 1024 {
		t.Errorf("dimension = %d, want default 1024", cfg.Embeddings.Dimension)
	}
	if cfg.Search.Provider != "duckduckgo" {
		t.Errorf("search provider = %q, want default duckduckgo", cfg.Search.Provider)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_KESTREL_KEY", "from-env")
	path := writeConfig(t, `
llm:
  api_key: ${TEST_KESTREL_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("api key = %q, want from-env", cfg.LLM.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "listen: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("want error for malformed yaml")
	}
}

func TestFindConfigExplicit(t *testing.T) {
	path := writeConfig(t, "data_dir: data")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig: %v", err)
	}
	if got != path {
		t.Errorf("got %q, want %q", got, path)
	}

	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("want error for missing explicit path")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default ok", func(c *Config) {}, ""},
		{"zero dimension", func(c *Config) { c.Embeddings.Dimension = 0 }, "embeddings.dimension"},
		{"zero max turns", func(c *Config) { c.Agent.MaxTurns = 0 }, "agent.max_turns"},
		{"empty model", func(c *Config) { c.LLM.Model = "" }, "llm.model"},
		{"email without host", func(c *Config) { c.Email.Enabled = true }, "email.smtp.host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
