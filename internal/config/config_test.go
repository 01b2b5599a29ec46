package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engram.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: memory\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Retrieval.TopK != 5 {
		t.Errorf("TopK = %d, want 5", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.DeduplicationThreshold != 0.95 {
		t.Errorf("DeduplicationThreshold = %v, want 0.95", cfg.Retrieval.DeduplicationThreshold)
	}
	if cfg.Memory.IdleTTL != 5*time.Minute {
		t.Errorf("IdleTTL = %v, want 5m", cfg.Memory.IdleTTL)
	}
	if cfg.Compression.TokenThreshold != 4000 {
		t.Errorf("TokenThreshold = %d, want 4000", cfg.Compression.TokenThreshold)
	}
	if cfg.Chunker.ChunkSize != 1000 || cfg.Chunker.ChunkOverlap != 200 {
		t.Errorf("chunker defaults not applied: %+v", cfg.Chunker)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults not applied: %+v", cfg.Logging)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("ENGRAM_TEST_KEY", "expanded-key")
	path := writeConfig(t, `
storage:
  backend: memory
embeddings:
  provider: openai
  api_key: ${ENGRAM_TEST_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Embeddings.APIKey != "expanded-key" {
		t.Errorf("APIKey = %q, want expanded-key", cfg.Embeddings.APIKey)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: sqlite
  sqlite_path: /tmp/engram.db
retrieval:
  top_k: 12
memory:
  idle_ttl: 90s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.SQLitePath != "/tmp/engram.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Retrieval.TopK != 12 {
		t.Errorf("TopK = %d, want 12", cfg.Retrieval.TopK)
	}
	if cfg.Memory.IdleTTL != 90*time.Second {
		t.Errorf("IdleTTL = %v, want 90s", cfg.Memory.IdleTTL)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, true},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = "sqlite" }, true},
		{"pgvector without url", func(c *Config) { c.Storage.Backend = "pgvector" }, true},
		{"pgvector with url", func(c *Config) {
			c.Storage.Backend = "pgvector"
			c.Storage.PostgresURL = "postgres://localhost/engram"
		}, false},
		{"unknown embeddings provider", func(c *Config) { c.Embeddings.Provider = "cohere" }, true},
		{"unknown completion provider", func(c *Config) { c.Completion.Provider = "grok" }, true},
		{"hnsw backend", func(c *Config) { c.Storage.Backend = "hnsw" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
