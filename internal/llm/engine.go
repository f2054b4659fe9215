package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/prompts"
)

const generalAssistantRules = "You are a contextual conversational AI assistant.\n" +
	"Use conversation history to answer naturally across mixed tasks in one thread.\n" +
	"When asked to draft/write content, produce strong draft.content.\n" +
	"When asked a general question, answer directly in assistant_message and include a short supporting draft.\n" +
	"Do not ask unnecessary clarifying questions.\n"

// RawCaller performs one backend round trip: given an assembled prompt,
// return the raw text response. Each backend (ollama, gemini) supplies its
// own RawCaller; the repair-loop algorithm itself is backend-agnostic.
type RawCaller func(ctx context.Context, prompt string) (string, error)

// Engine drives the shared prompt-assembly/parse/repair protocol (§4.4) on
// top of a backend-supplied RawCaller.
type Engine struct {
	prompts           *prompts.Pack
	call              RawCaller
	maxRepairAttempts int
	logger            *slog.Logger
}

// NewEngine builds an Engine. maxRepairAttempts is the number of repair
// rounds after the first attempt; the loop makes maxRepairAttempts+1 total
// backend calls before falling back to a synthesized draft.
func NewEngine(pack *prompts.Pack, maxRepairAttempts int, call RawCaller, logger *slog.Logger) *Engine {
	if maxRepairAttempts < 0 {
		maxRepairAttempts = 0
	}
	return &Engine{prompts: pack, call: call, maxRepairAttempts: maxRepairAttempts, logger: logger}
}

// GenerateDraft runs the full assemble -> call -> parse -> repair loop.
func (e *Engine) GenerateDraft(ctx context.Context, userMessage string, history []HistoryMessage) (*DraftResponse, error) {
	historyBlock := formatHistory(history)

	prompt := strings.Join([]string{
		e.prompts.System,
		generalAssistantRules,
		"Conversation history:",
		historyBlock,
		"User message:",
		userMessage,
		"",
		"Return ONLY valid JSON with keys: assistant_message, draft, tool_plan.",
		"assistant_message must be non-empty and directly answer the latest user message.",
		"draft must be an object with non-empty content; title may be empty when not needed.",
		"tool_plan is optional; use null when no concrete tool actions are needed.",
	}, "\n\n")

	var parsed *DraftResponse

	for attempt := 1; attempt <= e.maxRepairAttempts+1; attempt++ {
		raw, err := e.call(ctx, prompt)
		if err != nil {
			return nil, localflowerr.Upstream("llm: backend call failed: %v", err)
		}

		parsed = parseDraftResponse(raw)
		if parsed != nil && parsed.Draft != nil && strings.TrimSpace(parsed.Draft.Content) == "" {
			parsed.Draft.Content = recoverContentFromAssistantMessage(parsed.AssistantMessage)
		}
		if parsed != nil && parsed.Draft != nil && strings.TrimSpace(parsed.Draft.Content) != "" {
			parsed.Draft = normalizeTitleContent(parsed.Draft)
			if strings.TrimSpace(parsed.AssistantMessage) == "" {
				parsed.AssistantMessage = strings.TrimSpace(safeTruncate(parsed.Draft.Content, 300))
			}
			return parsed, nil
		}

		e.logger.Warn("llm output invalid", "attempt", attempt, "reason", "draft missing or empty")
		e.logger.Debug("llm raw output", "attempt", attempt, "raw", safeTruncate(strings.TrimSpace(raw), 900))

		prompt = strings.Join([]string{
			e.prompts.System,
			e.prompts.Repair,
			generalAssistantRules,
			"Conversation history:",
			historyBlock,
			"The previous output was invalid because draft was null or empty.",
			"You MUST output JSON with a non-null draft object containing non-empty content.",
			"You MUST keep assistant_message non-empty and relevant to the latest user message.",
			"Previous output:",
			raw,
			"Original user message:",
			userMessage,
		}, "\n\n")
	}

	assistantMsg := ""
	if parsed != nil {
		assistantMsg = parsed.AssistantMessage
	}
	assistantMsg = strings.TrimSpace(assistantMsg)
	if assistantMsg == "" {
		assistantMsg = "I can help with that."
	}

	return &DraftResponse{
		AssistantMessage: assistantMsg,
		Draft:            synthesizeFallbackDraft(assistantMsg),
		ToolPlan:         nil,
	}, nil
}
