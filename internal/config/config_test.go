package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app_name: demo\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppName != "demo" {
		t.Errorf("AppName = %q, want demo", cfg.AppName)
	}
	if cfg.LLMProvider != ProviderOllama {
		t.Errorf("LLMProvider = %q, want default %q", cfg.LLMProvider, ProviderOllama)
	}
	if cfg.RAGChunkSize != 1200 {
		t.Errorf("RAGChunkSize = %d, want default 1200", cfg.RAGChunkSize)
	}
	if cfg.LLMTimeout.Seconds() != 30 {
		t.Errorf("LLMTimeout = %v, want 30s", cfg.LLMTimeout)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "app_name: demo\nbogus_field: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRequiresGeminiKeyWhenSelected(t *testing.T) {
	path := writeConfig(t, "llm_provider: gemini\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "gemini_api_key") {
		t.Fatalf("err = %v, want gemini_api_key validation failure", err)
	}
}

func TestLoadRequiresHostedKeyWhenSelected(t *testing.T) {
	path := writeConfig(t, "llm_provider: hosted\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "hosted_api_key") {
		t.Fatalf("err = %v, want hosted_api_key validation failure", err)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, "llm_provider: anthropic\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported llm_provider")
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte("gemini_model: gemini-2.0\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	mainPath := filepath.Join(dir, "main.yaml")
	if err := os.WriteFile(mainPath, []byte("$include: base.yaml\napp_name: included-demo\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppName != "included-demo" {
		t.Errorf("AppName = %q, want included-demo", cfg.AppName)
	}
	if cfg.GeminiModel != "gemini-2.0" {
		t.Errorf("GeminiModel = %q, want gemini-2.0 from include", cfg.GeminiModel)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("APP_NAME", "env-name")
	t.Setenv("RAG_CHUNK_SIZE", "1500")
	path := writeConfig(t, "app_name: file-name\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppName != "env-name" {
		t.Errorf("AppName = %q, want env override", cfg.AppName)
	}
	if cfg.RAGChunkSize != 1500 {
		t.Errorf("RAGChunkSize = %d, want env override 1500", cfg.RAGChunkSize)
	}
}
