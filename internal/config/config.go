package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	Addr              string `toml:"addr"`
	ReadTimeoutMS     int    `toml:"read_timeout_ms" validate:"gte=0"`
	WriteTimeoutMS    int    `toml:"write_timeout_ms" validate:"gte=0"`
	ShutdownTimeoutMS int    `toml:"shutdown_timeout_ms" validate:"gte=0"`
	Mode              string `toml:"mode" validate:"omitempty,oneof=debug release test"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=json console"`
}

type StorageConfig struct {
	Backend string `toml:"backend" validate:"oneof=neo4j memory"`
}

type Neo4jConfig struct {
	URI      string `toml:"uri" validate:"required_if=Enabled true"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	// Enabled is derived from storage.backend, not read from the file.
	Enabled bool `toml:"-"`
}

type AuthConfig struct {
	Provider    string `toml:"provider" validate:"oneof=supabase header"`
	SupabaseURL string `toml:"supabase_url" validate:"required_if=Provider supabase"`
	SupabaseKey string `toml:"supabase_key" validate:"required_if=Provider supabase"`
	UserHeader  string `toml:"user_header"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
}

type GraphConfig struct {
	Clustering string `toml:"clustering" validate:"oneof=label_propagation components"`
	Naming     string `toml:"cluster_naming" validate:"oneof=keywords llm"`
}

type NotesConfig struct {
	MaxCASRetries int `toml:"max_cas_retries" validate:"gte=1"`
}

type DetectionConfig struct {
	Scope               string  `toml:"scope" validate:"oneof=user shared_tags"`
	Extractor           string  `toml:"extractor" validate:"oneof=sentence llm"`
	Scorer              string  `toml:"scorer" validate:"oneof=lexical llm"`
	UseEmbeddings       bool    `toml:"use_embeddings"`
	MaxCandidates       int     `toml:"max_candidates" validate:"gte=1"`
	TopicThreshold      float64 `toml:"topic_threshold" validate:"gte=0,lte=1"`
	OppositionThreshold float64 `toml:"opposition_threshold" validate:"gte=0,lte=1"`
	SuggestThreshold    float64 `toml:"suggest_threshold" validate:"gte=0,lte=1"`
	Workers             int     `toml:"workers" validate:"gte=1"`
	PairConcurrency     int     `toml:"pair_concurrency" validate:"gte=1"`
	QueueSize           int     `toml:"queue_size" validate:"gte=1"`
	ScorerTimeoutMS     int     `toml:"scorer_timeout_ms" validate:"gte=1"`
	MaxAttempts         int     `toml:"max_attempts" validate:"gte=1"`
	InitialBackoffMS    int     `toml:"initial_backoff_ms" validate:"gte=1"`
	MaxBackoffMS        int     `toml:"max_backoff_ms" validate:"gtefield=InitialBackoffMS"`
	SweepSchedule       string  `toml:"sweep_schedule"`
}

func (d DetectionConfig) ScorerTimeout() time.Duration {
	return time.Duration(d.ScorerTimeoutMS) * time.Millisecond
}

func (d DetectionConfig) InitialBackoff() time.Duration {
	return time.Duration(d.InitialBackoffMS) * time.Millisecond
}

func (d DetectionConfig) MaxBackoff() time.Duration {
	return time.Duration(d.MaxBackoffMS) * time.Millisecond
}

// Prompts are fmt templates. Claims takes the note text; Opposition takes
// the two claims; ClusterName takes the list of note titles.
type Prompts struct {
	Claims      string `toml:"claims"`
	Opposition  string `toml:"opposition"`
	ClusterName string `toml:"cluster_name"`
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Storage   StorageConfig   `toml:"storage"`
	Neo4j     Neo4jConfig     `toml:"neo4j"`
	Auth      AuthConfig      `toml:"auth"`
	LLM       LLMConfig       `toml:"llm"`
	Notes     NotesConfig     `toml:"notes"`
	Graph     GraphConfig     `toml:"graph"`
	Detection DetectionConfig `toml:"detection"`
	Prompts   Prompts         `toml:"prompts"`
}

// Default returns a configuration that runs fully in memory without any
// external service.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadTimeoutMS:     15000,
			WriteTimeoutMS:    15000,
			ShutdownTimeoutMS: 10000,
			Mode:              "release",
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Storage: StorageConfig{Backend: "memory"},
		Neo4j:   Neo4jConfig{URI: "bolt://localhost:7687", User: "neo4j"},
		Auth:    AuthConfig{Provider: "header", UserHeader: "X-User-ID"},
		Notes:   NotesConfig{MaxCASRetries: 5},
		Graph:   GraphConfig{Clustering: "label_propagation", Naming: "keywords"},
		Detection: DetectionConfig{
			Scope:               "user",
			Extractor:           "sentence",
			Scorer:              "lexical",
			MaxCandidates:       200,
			TopicThreshold:      0.3,
			OppositionThreshold: 0.6,
			SuggestThreshold:    0.75,
			Workers:             4,
			PairConcurrency:     8,
			QueueSize:           1024,
			ScorerTimeoutMS:     10000,
			MaxAttempts:         5,
			InitialBackoffMS:    200,
			MaxBackoffMS:        10000,
			SweepSchedule:       "@every 10m",
		},
	}
}

// Load reads the TOML file at path on top of the defaults. A missing file is
// not an error; the defaults and environment still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if port := getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	set(&c.Log.Level, "LOG_LEVEL")
	set(&c.Storage.Backend, "STORAGE_BACKEND")
	set(&c.Neo4j.URI, "NEO4J_URI")
	set(&c.Neo4j.User, "NEO4J_USER")
	set(&c.Neo4j.Password, "NEO4J_PASSWORD")
	set(&c.Neo4j.Database, "NEO4J_DATABASE")
	set(&c.Auth.Provider, "AUTH_PROVIDER")
	set(&c.Auth.SupabaseURL, "SUPABASE_URL")
	set(&c.Auth.SupabaseKey, "SUPABASE_SERVICE_ROLE_KEY")
	set(&c.LLM.Provider, "LLM_PROVIDER")
	set(&c.LLM.Model, "LLM_MODEL")
	set(&c.LLM.EmbeddingModel, "LLM_EMBEDDING_MODEL")
	set(&c.LLM.APIKey, "LLM_API_KEY")
	set(&c.LLM.BaseURL, "LLM_BASE_URL")
}

func (c *Config) Validate() error {
	c.Neo4j.Enabled = c.Storage.Backend == "neo4j"
	if c.Auth.UserHeader == "" {
		c.Auth.UserHeader = "X-User-ID"
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	needsLLM := c.Detection.Extractor == "llm" || c.Detection.Scorer == "llm" || c.Detection.UseEmbeddings || c.Graph.Naming == "llm"
	if needsLLM && c.LLM.Provider == "" {
		return fmt.Errorf("invalid configuration: llm-backed detection or cluster naming requires llm.provider")
	}
	return nil
}
