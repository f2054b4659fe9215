package httpapi

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/localflow/internal/localflowerr"
)

type executionRequest struct {
	ApprovalID   string         `json:"approval_id"`
	ToolName     string         `json:"tool_name"`
	ToolInput    map[string]any `json:"tool_input"`
	Confirmation map[string]any `json:"confirmation,omitempty"`
}

type executionResponse struct {
	ExecutionID string         `json:"execution_id"`
	Status      string         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
}

func (h *Handler) handleCreateExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed", ErrorCode: "INVALID_REQUEST"})
		return
	}

	var req executionRequest
	if err := decodeJSONRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ApprovalID == "" || req.ToolName == "" {
		writeError(w, localflowerr.InvalidInput("approval_id and tool_name are required"))
		return
	}

	ctx := r.Context()
	if h.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = h.cfg.Tracer.Start(ctx, "execution.execute", trace.SpanKindServer)
		defer span.End()
	}

	start := time.Now()
	exec, err := h.cfg.Executions.Execute(ctx, req.ApprovalID, req.ToolName, req.ToolInput, req.Confirmation)
	if h.cfg.Metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		h.cfg.Metrics.RecordToolExecution(req.ToolName, status, time.Since(start).Seconds())
	}
	if err != nil {
		writeError(w, err)
		return
	}

	result, decodeErr := decodeResultJSON(exec.ResultJSON)
	if decodeErr != nil {
		writeError(w, localflowerr.Internal("execution: decode result: %v", decodeErr))
		return
	}
	writeJSON(w, http.StatusOK, executionResponse{
		ExecutionID: exec.ID,
		Status:      string(exec.Status),
		Result:      result,
	})
}
