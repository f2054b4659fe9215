// Package ollama implements the local-engine LLM backend against an Ollama
// server's /api/generate endpoint, driven through the shared llm.Engine
// repair loop.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/localflow/internal/llm"
	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/prompts"
)

// DefaultMaxRepairAttempts matches the gemini backend's default so both
// configured backends present the same retry contract to the orchestrator.
const DefaultMaxRepairAttempts = 2

// Provider wraps llm.Engine with the Ollama HTTP transport.
type Provider struct {
	engine *llm.Engine
}

// New builds an Ollama-backed provider against baseURL (e.g.
// "http://localhost:11434").
func New(httpClient *http.Client, pack *prompts.Pack, baseURL, model string, timeout time.Duration, maxRepairAttempts int, logger *slog.Logger) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	call := func(ctx context.Context, prompt string) (string, error) {
		return generate(ctx, httpClient, baseURL, model, prompt, timeout)
	}
	return &Provider{engine: llm.NewEngine(pack, maxRepairAttempts, call, logger)}
}

func (p *Provider) GenerateDraft(ctx context.Context, userMessage string, history []llm.HistoryMessage) (*llm.DraftResponse, error) {
	return p.engine.GenerateDraft(ctx, userMessage, history)
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func generate(ctx context.Context, client *http.Client, baseURL, model, prompt string, timeout time.Duration) (string, error) {
	payload := generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": 0.4},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", localflowerr.Upstream("ollama: status %d: %s", resp.StatusCode, safeSnippet(respBody))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(parsed.Response), nil
}

func safeSnippet(b []byte) string {
	const max = 300
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
