package httpapi

import (
	"net/http"
	"strings"

	"github.com/haasonsaas/localflow/internal/localflowerr"
)

type draftUpdateRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type approveResponse struct {
	ApprovalID string `json:"approval_id"`
}

// handleDraftsSubroute dispatches /v1/drafts/{id}/update and
// /v1/drafts/{id}/approve — the teacher's mux has no path-parameter
// support, so sub-resources are matched by trailing segment.
func (h *Handler) handleDraftsSubroute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/drafts/")
	switch {
	case strings.HasSuffix(rest, "/update"):
		h.handleDraftUpdate(w, r, strings.TrimSuffix(rest, "/update"))
	case strings.HasSuffix(rest, "/approve"):
		h.handleDraftApprove(w, r, strings.TrimSuffix(rest, "/approve"))
	default:
		writeError(w, localflowerr.NotFound("unknown draft route"))
	}
}

func (h *Handler) handleDraftUpdate(w http.ResponseWriter, r *http.Request, draftID string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	draftID = strings.TrimSuffix(draftID, "/")
	if draftID == "" {
		writeError(w, localflowerr.NotFound("draft id is required"))
		return
	}

	var req draftUpdateRequest
	if err := decodeJSONRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.cfg.Store.GetDraft(r.Context(), draftID); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.cfg.Store.UpdateDraft(r.Context(), draftID, req.Title, req.Content); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) handleDraftApprove(w http.ResponseWriter, r *http.Request, draftID string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}
	draftID = strings.TrimSuffix(draftID, "/")
	if draftID == "" {
		writeError(w, localflowerr.NotFound("draft id is required"))
		return
	}

	draft, err := h.cfg.Store.GetDraft(r.Context(), draftID)
	if err != nil {
		writeError(w, err)
		return
	}
	approvalRow, err := h.cfg.Approvals.Approve(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RecordApproval()
	}
	writeJSON(w, http.StatusOK, approveResponse{ApprovalID: approvalRow.ID})
}
