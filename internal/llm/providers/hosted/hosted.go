// Package hosted implements the optional OpenAI-compatible backend: a third
// llm_provider choice for deployments that point at a hosted chat-completions
// endpoint (OpenAI itself, or any OpenAI-compatible gateway) instead of a
// local ollama daemon or the Gemini API. It speaks the same repair-loop
// protocol as the other two backends via the shared llm.Engine.
package hosted

import (
	"context"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/oauth2"

	"github.com/haasonsaas/localflow/internal/llm"
	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/prompts"
)

// DefaultMaxRepairAttempts mirrors the other two backends so the hosted
// engine repairs malformed JSON on the same budget.
const DefaultMaxRepairAttempts = 2

// Provider drives an OpenAI-compatible chat completions endpoint.
type Provider struct {
	engine *llm.Engine
}

// New builds a hosted Provider. Exactly one of apiKey or tokenSource should
// be set: a static bearer key is the primary path; tokenSource lets a
// deployment plug in OAuth2 (e.g. a workload-identity-issued token) instead.
func New(pack *prompts.Pack, baseURL, model, apiKey string, tokenSource oauth2.TokenSource, timeout time.Duration, maxRepairAttempts int, logger *slog.Logger) *Provider {
	p := &Provider{}
	caller := func(ctx context.Context, prompt string) (string, error) {
		return p.generate(ctx, baseURL, model, apiKey, tokenSource, timeout, prompt)
	}
	p.engine = llm.NewEngine(pack, maxRepairAttempts, caller, logger)
	return p
}

// GenerateDraft implements llm.Provider.
func (p *Provider) GenerateDraft(ctx context.Context, userMessage string, history []llm.HistoryMessage) (*llm.DraftResponse, error) {
	return p.engine.GenerateDraft(ctx, userMessage, history)
}

func (p *Provider) generate(ctx context.Context, baseURL, model, apiKey string, tokenSource oauth2.TokenSource, timeout time.Duration, prompt string) (string, error) {
	key := apiKey
	if tokenSource != nil {
		tok, err := tokenSource.Token()
		if err != nil {
			return "", localflowerr.Upstream("hosted llm: fetch oauth2 token: %v", err)
		}
		key = tok.AccessToken
	}
	if key == "" {
		return "", localflowerr.Upstream("hosted llm: no API key or OAuth2 token source configured")
	}

	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return "", localflowerr.Upstream("hosted llm: chat completion: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", localflowerr.Upstream("hosted llm: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
