// Package config loads the assistant configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all assistant configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Planner LLM configuration
	Planner PlannerConfig `yaml:"planner"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Storage paths
	Storage StorageConfig `yaml:"storage"`

	// Code/file backend
	CodeBackend CodeBackendConfig `yaml:"code_backend"`

	// Orchestrator tuning
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Retrieval tuning
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PlannerConfig configures the Anthropic planner client.
type PlannerConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // genai, ollama, hash
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	TaskType       string `yaml:"task_type"`
}

// StorageConfig configures SQLite database locations.
type StorageConfig struct {
	CRMDatabasePath string `yaml:"crm_database_path"`
	RAGDatabasePath string `yaml:"rag_database_path"`
	KnowledgeDir    string `yaml:"knowledge_dir"`
}

// CodeBackendConfig configures the sandboxed file/shell backend.
type CodeBackendConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// OrchestratorConfig tunes the multi-step loop.
type OrchestratorConfig struct {
	MaxSteps          int    `yaml:"max_steps"`
	CacheTTL          string `yaml:"cache_ttl"`
	LearningThreshold string `yaml:"learning_threshold"` // max wall clock for auto-curation
}

// RetrievalConfig tunes similarity search.
type RetrievalConfig struct {
	HistoryThreshold   float64 `yaml:"history_threshold"`
	HistoryLimit       int     `yaml:"history_limit"`
	KnowledgeThreshold float64 `yaml:"knowledge_threshold"`
	KnowledgeLimit     int     `yaml:"knowledge_limit"`
	PatternThreshold   float64 `yaml:"pattern_threshold"`
	PatternLimit       int     `yaml:"pattern_limit"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Name:    "relocato-assistant",
		Version: "1.0.0",

		Planner: PlannerConfig{
			Model:       "claude-3-5-sonnet-20241022",
			MaxTokens:   2000,
			Temperature: 0.7,
			Timeout:     "120s",
		},

		Embedding: EmbeddingConfig{
			Provider:       "hash",
			GenAIModel:     "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			TaskType:       "SEMANTIC_SIMILARITY",
		},

		Storage: StorageConfig{
			CRMDatabasePath: "data/crm.db",
			RAGDatabasePath: "data/rag.db",
			KnowledgeDir:    "knowledge",
		},

		CodeBackend: CodeBackendConfig{
			BaseURL: "http://localhost:3002/api/code",
			Timeout: "60s",
		},

		Orchestrator: OrchestratorConfig{
			MaxSteps:          10,
			CacheTTL:          "30s",
			LearningThreshold: "10s",
		},

		Retrieval: RetrievalConfig{
			HistoryThreshold:   0.70,
			HistoryLimit:       3,
			KnowledgeThreshold: 0.75,
			KnowledgeLimit:     3,
			PatternThreshold:   0.80,
			PatternLimit:       2,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies RELOCATO_* and well-known provider
// environment variables on top of file values.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Planner.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
		if c.Embedding.Provider == "hash" {
			c.Embedding.Provider = "genai"
		}
	}
	if model := os.Getenv("RELOCATO_PLANNER_MODEL"); model != "" {
		c.Planner.Model = model
	}
	if url := os.Getenv("RELOCATO_CODE_BACKEND_URL"); url != "" {
		c.CodeBackend.BaseURL = url
	}
	if path := os.Getenv("RELOCATO_CRM_DB"); path != "" {
		c.Storage.CRMDatabasePath = path
	}
	if path := os.Getenv("RELOCATO_RAG_DB"); path != "" {
		c.Storage.RAGDatabasePath = path
	}
	if dir := os.Getenv("RELOCATO_KNOWLEDGE_DIR"); dir != "" {
		c.Storage.KnowledgeDir = dir
	}
	if level := os.Getenv("RELOCATO_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for required values.
func (c *Config) Validate() error {
	if c.Planner.APIKey == "" {
		return fmt.Errorf("planner API key not configured (set ANTHROPIC_API_KEY)")
	}
	switch c.Embedding.Provider {
	case "genai":
		if c.Embedding.GenAIAPIKey == "" {
			return fmt.Errorf("embedding provider genai requires GEMINI_API_KEY")
		}
	case "ollama", "hash":
	default:
		return fmt.Errorf("invalid embedding provider: %s (valid: genai, ollama, hash)", c.Embedding.Provider)
	}
	if c.Orchestrator.MaxSteps <= 0 {
		return fmt.Errorf("orchestrator max_steps must be positive")
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// PlannerTimeout returns the planner request timeout.
func (c *Config) PlannerTimeout() time.Duration {
	return parseDuration(c.Planner.Timeout, 120*time.Second)
}

// CodeBackendTimeout returns the file/shell backend request timeout.
func (c *Config) CodeBackendTimeout() time.Duration {
	return parseDuration(c.CodeBackend.Timeout, 60*time.Second)
}

// CacheTTL returns the context cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.Orchestrator.CacheTTL, 30*time.Second)
}

// LearningThreshold returns the auto-curation latency bound.
func (c *Config) LearningThreshold() time.Duration {
	return parseDuration(c.Orchestrator.LearningThreshold, 10*time.Second)
}
