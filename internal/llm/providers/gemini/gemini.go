// Package gemini implements the hosted-engine LLM backend against Google's
// Generative Language API, driven through the shared llm.Engine repair
// loop.
package gemini

import (
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

// DefaultMaxRepairAttempts matches the prototype's GeminiProvider default.
const DefaultMaxRepairAttempts = 2

// Provider wraps llm.Engine with the Gemini HTTP transport.
type Provider struct {
	engine *llm.Engine
}

// New builds a Gemini-backed provider. httpClient is injected so callers
// can share a connection pool / set proxies per deployment.
func New(httpClient *http.Client, pack *prompts.Pack, apiKey, model string, timeout time.Duration, maxRepairAttempts int, logger *slog.Logger) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	call := func(ctx context.Context, prompt string) (string, error) {
		return generate(ctx, httpClient, apiKey, model, prompt, timeout)
	}
	return &Provider{engine: llm.NewEngine(pack, maxRepairAttempts, call, logger)}
}

func (p *Provider) GenerateDraft(ctx context.Context, userMessage string, history []llm.HistoryMessage) (*llm.DraftResponse, error) {
	return p.engine.GenerateDraft(ctx, userMessage, history)
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func generate(ctx context.Context, client *http.Client, apiKey, model, prompt string, timeout time.Duration) (string, error) {
	url := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
		model, apiKey,
	)
	payload := generateContentRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			Temperature:      0.2,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, strings.NewReader(string(body)))
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
		return "", localflowerr.Upstream("gemini: status %d: %s", resp.StatusCode, safeSnippet(respBody))
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", nil
	}
	parts := parsed.Candidates[0].Content.Parts
	var texts []string
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n")), nil
}

func safeSnippet(b []byte) string {
	const max = 300
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
