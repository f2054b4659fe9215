package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
)

const (
	titleTruncateLen   = 60
	previewTruncateLen = 90
)

type conversationSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Preview   string `json:"preview"`
	CreatedAt string `json:"created_at"`
}

type conversationsPage struct {
	Conversations []conversationSummary `json:"conversations"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

// deriveTitleAndPreview applies the repository's conversation-list rule: the
// title is the first user message truncated to titleTruncateLen, and the
// preview is the most recent message truncated to previewTruncateLen. A
// conversation with no messages yet falls back to its stored title.
func deriveTitleAndPreview(conv *domain.Conversation, messages []*domain.Message) (string, string) {
	title := conv.Title
	for _, m := range messages {
		if m.Role == "user" {
			title = truncateRunes(m.Content, titleTruncateLen)
			break
		}
	}
	preview := ""
	if len(messages) > 0 {
		preview = truncateRunes(messages[len(messages)-1].Content, previewTruncateLen)
	}
	return title, preview
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if limit < 1 || limit > 200 {
		writeError(w, localflowerr.InvalidInput("limit must be in [1,200]"))
		return
	}
	if offset < 0 {
		writeError(w, localflowerr.InvalidInput("offset must be >= 0"))
		return
	}

	convs, err := h.cfg.Store.ListConversations(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	page := conversationsPage{Limit: limit, Offset: offset}
	for _, c := range convs {
		messages, err := h.cfg.Store.ListMessages(r.Context(), c.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		title, preview := deriveTitleAndPreview(c, messages)
		page.Conversations = append(page.Conversations, conversationSummary{
			ID:        c.ID,
			Title:     title,
			Preview:   preview,
			CreatedAt: c.CreatedAt.Format(rfc3339),
		})
	}
	writeJSON(w, http.StatusOK, page)
}

const rfc3339 = "2006-01-02T15:04:05Z07:00"

type messageView struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type conversationDetail struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	CreatedAt   string        `json:"created_at"`
	Messages    []messageView `json:"messages"`
	LatestDraft *draftView    `json:"latest_draft,omitempty"`
}

type approvalView struct {
	ID           string          `json:"id"`
	DraftID      string          `json:"draft_id"`
	DraftHash    string          `json:"draft_hash"`
	ToolplanHash *string         `json:"toolplan_hash,omitempty"`
	CreatedAt    string          `json:"created_at"`
	Executions   []executionView `json:"executions"`
}

type executionView struct {
	ID          string         `json:"id"`
	ToolName    string         `json:"tool_name"`
	Status      string         `json:"status"`
	Request     map[string]any `json:"request,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

type auditResponse struct {
	ConversationID string         `json:"conversation_id"`
	Approvals      []approvalView `json:"approvals"`
}

// handleConversationSubroute dispatches GET /v1/conversations/{id} and GET
// /v1/conversations/{id}/audit.
func (h *Handler) handleConversationSubroute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/conversations/")
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		writeError(w, localflowerr.NotFound("conversation id is required"))
		return
	}
	if strings.HasSuffix(rest, "/audit") {
		h.handleConversationAudit(w, r, strings.TrimSuffix(rest, "/audit"))
		return
	}
	h.handleConversationDetail(w, r, rest)
}

func (h *Handler) handleConversationDetail(w http.ResponseWriter, r *http.Request, id string) {
	conv, err := h.cfg.Store.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := h.cfg.Store.ListMessages(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	drafts, err := h.cfg.Store.ListDraftsForConversation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	detail := conversationDetail{ID: conv.ID, Title: conv.Title, CreatedAt: conv.CreatedAt.Format(rfc3339)}
	for _, m := range messages {
		detail.Messages = append(detail.Messages, messageView{
			ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt.Format(rfc3339),
		})
	}
	if len(drafts) > 0 {
		latest := drafts[len(drafts)-1]
		detail.LatestDraft = &draftView{
			ID: latest.ID, Type: string(latest.Type), Title: latest.Title,
			Content: latest.Content, Status: string(latest.Status),
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleConversationAudit(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.cfg.Store.GetConversation(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	approvals, err := h.cfg.Store.ListApprovalsForConversation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := auditResponse{ConversationID: id}
	for _, a := range approvals {
		executions, err := h.cfg.Store.ListExecutionsForApproval(r.Context(), a.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		av := approvalView{
			ID: a.ID, DraftID: a.DraftID, DraftHash: a.DraftHash,
			ToolplanHash: a.ToolplanHash, CreatedAt: a.CreatedAt.Format(rfc3339),
		}
		for _, e := range executions {
			req, _ := decodeResultJSON(e.RequestJSON)
			result, _ := decodeResultJSON(e.ResultJSON)
			av.Executions = append(av.Executions, executionView{
				ID: e.ID, ToolName: e.ToolName, Status: string(e.Status),
				Request: req, Result: result, CreatedAt: e.CreatedAt.Format(rfc3339),
			})
		}
		resp.Approvals = append(resp.Approvals, av)
	}
	writeJSON(w, http.StatusOK, resp)
}
