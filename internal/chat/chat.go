// Package chat implements the Chat Orchestrator (C8, §4.8): the single
// handler that ties intent triage, the permissioned retrieval index, the
// LLM provider, and draft/tool-plan persistence into one conversation turn.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/haasonsaas/localflow/internal/approval"
	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/llm"
	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/rag"
	"github.com/haasonsaas/localflow/internal/store"
)

const retrievalTopK = 4

// Service is the chat orchestrator.
type Service struct {
	store     store.Store
	provider  llm.Provider
	rag       *rag.Service
	approvals *approval.Service
	logger    *slog.Logger
}

// New builds a chat Service.
func New(st store.Store, provider llm.Provider, ragSvc *rag.Service, approvals *approval.Service, logger *slog.Logger) *Service {
	return &Service{store: st, provider: provider, rag: ragSvc, approvals: approvals, logger: logger}
}

// DraftOut is the draft view embedded in a Turn response.
type DraftOut struct {
	ID      string
	Type    domain.DraftType
	Title   string
	Content string
	Status  domain.DraftStatus
}

// Turn is the full response of one chat exchange.
type Turn struct {
	ConversationID        string
	AssistantMessage      string
	Draft                 *DraftOut
	ToolPlan              []toolAction
	RAGPermissionRequired bool
	SuggestedPath         string
}

// Request is one incoming chat turn.
type Request struct {
	ConversationID  string
	Message         string
	ForceFileSearch bool
}

// Handle runs the full §4.8 sequence for one turn.
func (s *Service) Handle(ctx context.Context, req Request) (*Turn, error) {
	conv, history, err := s.resolveConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.AddMessage(ctx, conv.ID, "user", req.Message); err != nil {
		return nil, err
	}

	intentKind := classifyIntent(req.Message, req.ForceFileSearch)
	if intentKind != intentNone {
		if turn := s.permissionGate(conv.ID, req.Message); turn != nil {
			return turn, nil
		}
	}

	llmUserMessage := req.Message
	var sourcesFooter string

	switch intentKind {
	case intentFileFind:
		hits, err := s.rag.FindFiles(req.Message, 8, nil, 0)
		if err != nil {
			return nil, localflowerr.Wrap(localflowerr.KindInvalidInput, err, "file search failed")
		}
		assistant := formatFileFindMessage(hits)
		if _, err := s.store.AddMessage(ctx, conv.ID, "assistant", assistant); err != nil {
			return nil, err
		}
		return &Turn{ConversationID: conv.ID, AssistantMessage: assistant}, nil

	case intentRetrieval:
		hits, err := s.rag.Search(req.Message, retrievalTopK, nil)
		if err != nil {
			return nil, localflowerr.Wrap(localflowerr.KindInvalidInput, err, "retrieval search failed")
		}
		if len(hits) > 0 {
			llmUserMessage = withLocalContext(req.Message, hits)
			sourcesFooter = sourcesFooterFrom(hits)
		}
	}

	resp, err := s.provider.GenerateDraft(ctx, llmUserMessage, toHistory(history))
	if err != nil {
		s.logger.Warn("llm generation failed", "conversation_id", conv.ID, "error", err)
		return nil, localflowerr.Wrap(localflowerr.KindUpstream, err, "LLM generation failed")
	}
	if resp.Draft == nil {
		return nil, localflowerr.Upstream("LLM generation failed: missing draft")
	}

	assistantMessage := assistantFromDraft(resp.Draft.Title, resp.Draft.Content)
	if sourcesFooter != "" {
		assistantMessage = strings.TrimRight(assistantMessage, "\n") + "\n\n" + sourcesFooter
	}

	draftType := domain.DraftType(resp.Draft.Type)
	if draftType == "" {
		draftType = domain.DraftTypeAssistant
	}
	draft, err := s.store.CreateDraft(ctx, conv.ID, draftType, resp.Draft.Title, resp.Draft.Content)
	if err != nil {
		return nil, err
	}

	actions := actionsFromWire(resp.ToolPlan)
	actions = normalizeToolPlan(req.Message, actions)
	if len(actions) == 0 {
		actions = fallbackToolPlan(req.Message, assistantMessage)
		actions = normalizeToolPlan(req.Message, actions)
	}

	if len(actions) > 0 {
		if _, err := s.approvals.UpsertToolPlan(ctx, draft, toolPlanMap(actions)); err != nil {
			return nil, err
		}
	}

	if _, err := s.store.AddMessage(ctx, conv.ID, "assistant", assistantMessage); err != nil {
		return nil, err
	}

	return &Turn{
		ConversationID:   conv.ID,
		AssistantMessage: assistantMessage,
		Draft: &DraftOut{
			ID:      draft.ID,
			Type:    draft.Type,
			Title:   draft.Title,
			Content: draft.Content,
			Status:  draft.Status,
		},
		ToolPlan: actions,
	}, nil
}

func (s *Service) resolveConversation(ctx context.Context, conversationID string) (*domain.Conversation, []*domain.Message, error) {
	if conversationID != "" {
		conv, err := s.store.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, nil, err
		}
		history, err := s.store.ListMessages(ctx, conv.ID)
		if err != nil {
			return nil, nil, err
		}
		return conv, history, nil
	}
	conv, err := s.store.CreateConversation(ctx, "New chat")
	if err != nil {
		return nil, nil, err
	}
	return conv, nil, nil
}

// permissionGate implements §4.8 step 5. It returns a non-nil Turn when the
// turn must short-circuit because the index has no roots covering what the
// user is asking about.
func (s *Service) permissionGate(conversationID, message string) *Turn {
	approved := s.rag.ListPermissions()

	if len(approved) == 0 {
		return &Turn{
			ConversationID:        conversationID,
			AssistantMessage:      "I don't have access to any local folders yet. Grant me access to a folder (for example your home directory) and I'll search it.",
			RAGPermissionRequired: true,
			SuggestedPath:         userHomeDir(),
		}
	}

	if hintName, segment, ok := detectFolderHint(message); ok {
		covered := false
		for _, root := range approved {
			if strings.Contains(strings.ToLower(root), segment) {
				covered = true
				break
			}
		}
		if !covered {
			return &Turn{
				ConversationID:        conversationID,
				AssistantMessage:      fmt.Sprintf("I don't have access to your %s folder yet. Grant me access and I'll search it.", hintName),
				RAGPermissionRequired: true,
				SuggestedPath:         suggestedFolderPath(segment),
			}
		}
	}

	if hints := rag.ExtractDriveHints(message); len(hints) > 0 {
		for _, drive := range hints {
			covered := false
			for _, root := range approved {
				if strings.HasPrefix(strings.ToLower(root), strings.ToLower(drive)) {
					covered = true
					break
				}
			}
			if !covered {
				return &Turn{
					ConversationID:        conversationID,
					AssistantMessage:      fmt.Sprintf("I don't have access to drive %s yet. Grant me access and I'll search it.", drive),
					RAGPermissionRequired: true,
					SuggestedPath:         drive,
				}
			}
		}
	}

	return nil
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

func suggestedFolderPath(segment string) string {
	home := userHomeDir()
	if home == "" {
		return segment
	}
	return home + string(os.PathSeparator) + capitalize(segment)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func assistantFromDraft(title, content string) string {
	c := strings.TrimSpace(content)
	if c != "" {
		return c
	}
	return strings.TrimSpace(title)
}

func formatFileFindMessage(hits []rag.Hit) string {
	if len(hits) == 0 {
		return "I couldn't find any matching files in your approved folders."
	}
	var b strings.Builder
	b.WriteString("Here's what I found:\n")
	for _, h := range hits {
		b.WriteString("- " + h.Path + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func withLocalContext(userMessage string, hits []rag.Hit) string {
	var b strings.Builder
	b.WriteString("Local document context:\n")
	for _, h := range hits {
		b.WriteString("- " + h.Path + ": " + h.Snippet + "\n")
	}
	b.WriteString("\n")
	b.WriteString(userMessage)
	return b.String()
}

func sourcesFooterFrom(hits []rag.Hit) string {
	seen := make(map[string]bool, len(hits))
	var paths []string
	for _, h := range hits {
		if !seen[h.Path] {
			seen[h.Path] = true
			paths = append(paths, h.Path)
		}
		if len(paths) >= 4 {
			break
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return "Sources:\n- " + strings.Join(paths, "\n- ")
}

func toHistory(messages []*domain.Message) []llm.HistoryMessage {
	out := make([]llm.HistoryMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func actionsFromWire(plan *llm.ToolPlanOut) []toolAction {
	if plan == nil {
		return nil
	}
	out := make([]toolAction, 0, len(plan.Actions))
	for _, a := range plan.Actions {
		out = append(out, toolAction{Tool: a.Tool, Params: a.Params})
	}
	return out
}

func toolPlanMap(actions []toolAction) map[string]any {
	wire := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		wire = append(wire, map[string]any{"tool": a.Tool, "params": a.Params})
	}
	return map[string]any{"actions": wire}
}
