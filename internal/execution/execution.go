// Package execution implements the Execution Service (C6, §4.6): the
// content-addressed re-verification gate between an Approval and a tool
// invocation, and the Execution row lifecycle.
package execution

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/localflow/internal/canon"
	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/store"
	"github.com/haasonsaas/localflow/internal/tools"
	"github.com/haasonsaas/localflow/internal/workerpool"
)

// toolRunJob is what gets dispatched to the worker pool: the tool plus its
// already-validated input.
type toolRunJob struct {
	tool  tools.Tool
	input map[string]any
}

// Service re-verifies a tool call against its locked Approval and runs it.
type Service struct {
	store    store.Store
	registry *tools.Registry
	pool     *workerpool.Pool[toolRunJob, map[string]any]
	logger   *slog.Logger
}

// New builds an execution Service. workers bounds how many tool.Run calls
// may be in flight at once.
func New(st store.Store, registry *tools.Registry, workers int, logger *slog.Logger) *Service {
	pool := workerpool.New(workerpool.Config[toolRunJob, map[string]any]{
		Workers: workers,
		Processor: func(ctx context.Context, job toolRunJob) (map[string]any, error) {
			return job.tool.Run(ctx, job.input)
		},
	})
	pool.Start()
	return &Service{store: st, registry: registry, pool: pool, logger: logger}
}

// Close stops the underlying worker pool.
func (s *Service) Close() { s.pool.Stop() }

// Execute runs the full validation sequence from §4.6 and, if every check
// passes, dispatches the tool and persists the terminal Execution row.
func (s *Service) Execute(ctx context.Context, approvalID, toolName string, toolInput, confirmation map[string]any) (*domain.Execution, error) {
	approval, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	draft, err := s.store.GetDraft(ctx, approval.DraftID)
	if err != nil {
		return nil, err
	}

	if canon.HashText(draft.Content) != approval.DraftHash {
		return nil, localflowerr.Conflict("draft content changed since approval")
	}

	toolPlan, err := s.store.GetToolPlanByDraft(ctx, draft.ID)
	if err != nil {
		return nil, err
	}
	var currentTPHash *string
	if toolPlan != nil {
		currentTPHash = &toolPlan.ContentHash
	}
	if !hashesEqual(currentTPHash, approval.ToolplanHash) {
		return nil, localflowerr.Conflict("tool plan changed since approval")
	}

	approved, err := isToolInputApproved(toolPlan, toolName, toolInput)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, localflowerr.Conflict("tool input not approved by locked tool plan")
	}

	tool, err := s.registry.Get(toolName)
	if err != nil {
		return nil, err
	}
	if err := enforceToolPolicy(tool, toolInput, confirmation); err != nil {
		return nil, err
	}
	if err := tool.Validate(toolInput); err != nil {
		return nil, err
	}

	requestCanonical, err := canon.Marshal(toolInput)
	if err != nil {
		return nil, localflowerr.Internal("execution: canonicalise tool input: %v", err)
	}
	startedAt := time.Now().UTC()
	requestJSON, err := canon.Marshal(map[string]any{
		"tool_input":      toolInput,
		"confirmation":    confirmation,
		"tool_input_hash": canon.HashBytes(requestCanonical),
		"started_at":      startedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, localflowerr.Internal("execution: canonicalise request: %v", err)
	}

	exe, err := s.store.CreateExecution(ctx, approval.ID, toolName, string(requestJSON))
	if err != nil {
		return nil, err
	}

	startedNs := time.Now()
	result, runErr := s.pool.SubmitWait(ctx, workerpool.Job[toolRunJob]{
		ID:   exe.ID,
		Data: toolRunJob{tool: tool, input: toolInput},
	})
	durationMs := int(time.Since(startedNs) / time.Millisecond)

	status := domain.ExecutionSucceeded
	payload := map[string]any{"output": result, "error": nil}
	if runErr != nil {
		status = domain.ExecutionFailed
		payload = map[string]any{"output": nil, "error": runErr.Error()}
		s.logger.Warn("tool execution failed", "tool", toolName, "execution_id", exe.ID, "error", runErr)
	}
	payload["meta"] = map[string]any{
		"started_at":  startedAt.Format(time.RFC3339Nano),
		"finished_at": time.Now().UTC().Format(time.RFC3339Nano),
		"duration_ms": durationMs,
	}

	resultJSON, err := canon.Marshal(payload)
	if err != nil {
		return nil, localflowerr.Internal("execution: canonicalise result: %v", err)
	}

	return s.store.FinishExecution(ctx, exe.ID, status, string(resultJSON))
}

func hashesEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// isToolInputApproved mirrors the prototype's _is_tool_input_approved:
// with no ToolPlan, only an empty tool_input is approved; otherwise the
// locked plan must contain an action for toolName whose params
// canonicalise identically to toolInput.
func isToolInputApproved(toolPlan *domain.ToolPlan, toolName string, toolInput map[string]any) (bool, error) {
	if toolPlan == nil {
		return len(toolInput) == 0, nil
	}

	var planObj map[string]any
	if err := json.Unmarshal([]byte(toolPlan.JSONCanonical), &planObj); err != nil {
		return false, nil
	}
	actionsRaw, _ := planObj["actions"].([]any)
	if actionsRaw == nil {
		return false, nil
	}

	wanted, err := canon.Marshal(toolInput)
	if err != nil {
		return false, localflowerr.Internal("execution: canonicalise tool input: %v", err)
	}

	for _, raw := range actionsRaw {
		action, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if action["tool"] != toolName {
			continue
		}
		params, ok := action["params"].(map[string]any)
		if !ok {
			continue
		}
		paramsCanon, err := canon.Marshal(params)
		if err != nil {
			continue
		}
		if string(paramsCanon) == string(wanted) {
			return true, nil
		}
	}
	return false, nil
}

// extractActionIDs mirrors the prototype's _extract_action_ids.
func extractActionIDs(toolInput map[string]any) []string {
	actionsRaw, _ := toolInput["actions"].([]any)
	var out []string
	for _, raw := range actionsRaw {
		action, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, ok := action["id"].(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// enforceToolPolicy mirrors the prototype's _enforce_tool_policy. LOW-risk
// tools need no confirmation; MEDIUM/HIGH need one, with per-action-id
// approval when tool_input carries an actions array (Open Question
// decision 3), and HIGH additionally needs allow_high_risk.
func enforceToolPolicy(tool tools.Tool, toolInput, confirmation map[string]any) error {
	risk := tool.Risk()
	if risk == domain.RiskLow {
		return nil
	}

	if confirmation == nil {
		return localflowerr.Conflict("confirmation payload is required for medium/high-risk tools")
	}

	approvedActions := make(map[string]bool)
	if raw, ok := confirmation["approved_actions"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					approvedActions[trimmed] = true
				}
			}
		}
	}

	actionIDs := extractActionIDs(toolInput)
	for _, id := range actionIDs {
		if !approvedActions[id] {
			return localflowerr.Conflict("confirmation payload is missing one or more approved action ids")
		}
	}

	if risk == domain.RiskHigh {
		allow, _ := confirmation["allow_high_risk"].(bool)
		if !allow {
			return localflowerr.Conflict("high-risk tool requires confirmation.allow_high_risk=true")
		}
	}

	return nil
}
