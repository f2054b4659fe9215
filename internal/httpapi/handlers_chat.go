package httpapi

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/localflow/internal/chat"
)

type chatRequest struct {
	ConversationID  string `json:"conversation_id,omitempty"`
	Message         string `json:"message"`
	ForceFileSearch bool   `json:"force_file_search,omitempty"`
}

type draftView struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

type toolActionView struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

type chatResponse struct {
	ConversationID        string           `json:"conversation_id"`
	AssistantMessage      string           `json:"assistant_message"`
	Draft                 *draftView       `json:"draft,omitempty"`
	ToolPlan              []toolActionView `json:"tool_plan,omitempty"`
	RAGPermissionRequired bool             `json:"rag_permission_required"`
	RAGSuggestedPath      string           `json:"rag_suggested_path,omitempty"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}

	var req chatRequest
	if err := decodeJSONRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	if h.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = h.cfg.Tracer.Start(ctx, "chat.turn", trace.SpanKindServer)
		defer span.End()
	}

	turn, err := h.cfg.Chat.Handle(ctx, chat.Request{
		ConversationID:  req.ConversationID,
		Message:         req.Message,
		ForceFileSearch: req.ForceFileSearch,
	})
	if err != nil {
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.RecordChatTurn("error")
		}
		writeError(w, err)
		return
	}

	if h.cfg.Metrics != nil {
		switch {
		case turn.RAGPermissionRequired:
			h.cfg.Metrics.RecordChatTurn("permission_required")
		case turn.Draft != nil:
			h.cfg.Metrics.RecordChatTurn("drafted")
			h.cfg.Metrics.RecordDraftCreated(string(turn.Draft.Type))
		default:
			h.cfg.Metrics.RecordChatTurn("replied")
		}
	}

	resp := chatResponse{
		ConversationID:        turn.ConversationID,
		AssistantMessage:      turn.AssistantMessage,
		RAGPermissionRequired: turn.RAGPermissionRequired,
		RAGSuggestedPath:      turn.SuggestedPath,
	}
	if turn.Draft != nil {
		resp.Draft = &draftView{
			ID:      turn.Draft.ID,
			Type:    string(turn.Draft.Type),
			Title:   turn.Draft.Title,
			Content: turn.Draft.Content,
			Status:  string(turn.Draft.Status),
		}
	}
	for _, a := range turn.ToolPlan {
		resp.ToolPlan = append(resp.ToolPlan, toolActionView{Tool: a.Tool, Params: a.Params})
	}

	writeJSON(w, http.StatusOK, resp)
}
