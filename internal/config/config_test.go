package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "user", cfg.Detection.Scope)
	assert.Equal(t, 10*time.Second, cfg.Detection.ScorerTimeout())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[storage]
backend = "neo4j"

[neo4j]
uri = "bolt://graph:7687"
user = "svc"

[detection]
scope = "shared_tags"
topic_threshold = 0.4
max_attempts = 3

[prompts]
claims = "claims for %s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "neo4j", cfg.Storage.Backend)
	assert.True(t, cfg.Neo4j.Enabled)
	assert.Equal(t, "bolt://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, "shared_tags", cfg.Detection.Scope)
	assert.InDelta(t, 0.4, cfg.Detection.TopicThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Detection.MaxAttempts)
	assert.Equal(t, 4, cfg.Detection.Workers, "unset keys keep defaults")
	assert.Equal(t, "claims for %s", cfg.Prompts.Claims)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"PORT":         "9090",
		"NEO4J_URI":    "bolt://env:7687",
		"LLM_PROVIDER": "openai",
		"LLM_API_KEY":  "sk-test",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "bolt://env:7687", cfg.Neo4j.URI)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "dynamo" }, true},
		{"threshold out of range", func(c *Config) { c.Detection.TopicThreshold = 1.5 }, true},
		{"supabase without key", func(c *Config) { c.Auth.Provider = "supabase" }, true},
		{"llm scorer without provider", func(c *Config) { c.Detection.Scorer = "llm" }, true},
		{"llm cluster naming without provider", func(c *Config) { c.Graph.Naming = "llm" }, true},
		{"unknown clustering", func(c *Config) { c.Graph.Clustering = "louvain" }, true},
		{"backoff ceiling below start", func(c *Config) { c.Detection.MaxBackoffMS = 1 }, true},
		{"neo4j without uri", func(c *Config) {
			c.Storage.Backend = "neo4j"
			c.Neo4j.URI = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
