// Package config loads localflow's settings from a YAML/JSON5 file
// (resolving $include directives) and environment variable overrides, into
// one immutable Config value built once at startup (§4.8/§9 "interface-driven
// dependency injection" — no process-wide config globals).
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of options recognised by localflow (§6).
type Config struct {
	AppName string `yaml:"app_name"`
	Env     string `yaml:"env"`

	DatabaseURL string `yaml:"database_url"`

	LLMProvider     string        `yaml:"llm_provider"`
	OllamaBaseURL   string        `yaml:"ollama_base_url"`
	OllamaModel     string        `yaml:"ollama_model"`
	GeminiAPIKey    string        `yaml:"gemini_api_key"`
	GeminiModel     string        `yaml:"gemini_model"`
	HostedBaseURL   string        `yaml:"hosted_base_url"`
	HostedModel     string        `yaml:"hosted_model"`
	HostedAPIKey    string        `yaml:"hosted_api_key"`
	LLMTimeoutS     int           `yaml:"llm_timeout_s"`
	LLMTimeout      time.Duration `yaml:"-"`
	PromptPackDir   string        `yaml:"prompt_pack_dir"`

	RAGStoreDir     string `yaml:"rag_store_dir"`
	RAGChunkSize    int    `yaml:"rag_chunk_size"`
	RAGChunkOverlap int    `yaml:"rag_chunk_overlap"`
	RAGEmbeddingDim int    `yaml:"rag_embedding_dim"`

	APIKey      string   `yaml:"api_key"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// LLMProvider values recognised by §6's enum, plus the SPEC_FULL addition of
// a third OpenAI-compatible "hosted" backend (see SPEC_FULL.md DOMAIN STACK).
const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderHosted = "hosted"
)

// Load reads path, resolves $include directives, expands environment
// variables, applies env-var overrides and defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	cfg.LLMTimeout = time.Duration(cfg.LLMTimeoutS) * time.Second
	return cfg, nil
}

func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AppName == "" {
		cfg.AppName = "localflow"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "file:localflow.db"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderOllama
	}
	if cfg.OllamaBaseURL == "" {
		cfg.OllamaBaseURL = "http://localhost:11434"
	}
	if cfg.OllamaModel == "" {
		cfg.OllamaModel = "llama3.1"
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-1.5-flash"
	}
	if cfg.HostedModel == "" {
		cfg.HostedModel = "gpt-4o-mini"
	}
	if cfg.LLMTimeoutS == 0 {
		cfg.LLMTimeoutS = 30
	}
	if cfg.PromptPackDir == "" {
		cfg.PromptPackDir = "prompts"
	}
	if cfg.RAGStoreDir == "" {
		cfg.RAGStoreDir = "data/rag"
	}
	if cfg.RAGChunkSize == 0 {
		cfg.RAGChunkSize = 1200
	}
	if cfg.RAGChunkOverlap == 0 {
		cfg.RAGChunkOverlap = 200
	}
	if cfg.RAGEmbeddingDim == 0 {
		cfg.RAGEmbeddingDim = 384
	}
}

// applyEnvOverrides applies "all overridable by environment variables of
// matching name" (§6): the uppercased field name is the env var.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv("APP_NAME")); v != "" {
		cfg.AppName = v
	}
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_PROVIDER")); v != "" {
		cfg.LLMProvider = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_BASE_URL")); v != "" {
		cfg.OllamaBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_MODEL")); v != "" {
		cfg.OllamaModel = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_MODEL")); v != "" {
		cfg.GeminiModel = v
	}
	if v := strings.TrimSpace(os.Getenv("HOSTED_BASE_URL")); v != "" {
		cfg.HostedBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("HOSTED_MODEL")); v != "" {
		cfg.HostedModel = v
	}
	if v := strings.TrimSpace(os.Getenv("HOSTED_API_KEY")); v != "" {
		cfg.HostedAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_TIMEOUT_S")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.LLMTimeoutS = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("PROMPT_PACK_DIR")); v != "" {
		cfg.PromptPackDir = v
	}
	if v := strings.TrimSpace(os.Getenv("RAG_STORE_DIR")); v != "" {
		cfg.RAGStoreDir = v
	}
	if v := strings.TrimSpace(os.Getenv("RAG_CHUNK_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAGChunkSize = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("RAG_CHUNK_OVERLAP")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAGChunkOverlap = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("RAG_EMBEDDING_DIM")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAGEmbeddingDim = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("API_KEY")); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); v != "" {
		cfg.CORSOrigins = splitAndTrim(v, ",")
	}
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConfigValidationError collects every validation issue at once, the way the
// teacher's loader does, rather than failing on the first one.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var issues []string

	switch cfg.LLMProvider {
	case ProviderOllama, ProviderGemini, ProviderHosted:
	default:
		issues = append(issues, fmt.Sprintf("llm_provider must be %q, %q, or %q", ProviderOllama, ProviderGemini, ProviderHosted))
	}
	if cfg.LLMProvider == ProviderGemini && strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		issues = append(issues, "gemini_api_key is required when llm_provider is \"gemini\"")
	}
	if cfg.LLMProvider == ProviderHosted && strings.TrimSpace(cfg.HostedAPIKey) == "" {
		issues = append(issues, "hosted_api_key is required when llm_provider is \"hosted\"")
	}
	if cfg.LLMTimeoutS <= 0 {
		issues = append(issues, "llm_timeout_s must be > 0")
	}
	if cfg.RAGChunkSize < 0 {
		issues = append(issues, "rag_chunk_size must be >= 0")
	}
	if cfg.RAGChunkOverlap < 0 {
		issues = append(issues, "rag_chunk_overlap must be >= 0")
	}
	if cfg.RAGEmbeddingDim < 0 {
		issues = append(issues, "rag_embedding_dim must be >= 0")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
