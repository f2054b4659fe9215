package execution

import (
	"context"
	"log/slog"
	"io"
	"testing"

	"github.com/haasonsaas/localflow/internal/canon"
	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/store/sqlite"
	"github.com/haasonsaas/localflow/internal/tools"
)

// fakeTool is a minimal tools.Tool for exercising the execution service
// without a live side-effecting call.
type fakeTool struct {
	name string
	risk domain.RiskTier
	run  func(ctx context.Context, input map[string]any) (map[string]any, error)
}

func (f *fakeTool) Name() string               { return f.name }
func (f *fakeTool) Risk() domain.RiskTier       { return f.risk }
func (f *fakeTool) Validate(map[string]any) error { return nil }
func (f *fakeTool) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	if f.run != nil {
		return f.run(ctx, input)
	}
	return map[string]any{"ok": true}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// seedApproval creates a draft with a one-action tool plan approving
// toolName/input and locks it, returning the resulting approval.
func seedApproval(t *testing.T, st *sqlite.Store, toolName string, input map[string]any) *domain.Approval {
	t.Helper()
	ctx := context.Background()

	draft, err := st.CreateDraft(ctx, "", domain.DraftTypeRoutine, "t", "body")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}

	plan := map[string]any{"actions": []any{map[string]any{"id": "a1", "tool": toolName, "params": input}}}
	planBytes, err := canon.Marshal(plan)
	if err != nil {
		t.Fatalf("canon.Marshal: %v", err)
	}
	if _, err := st.UpsertToolPlan(ctx, draft.ID, string(planBytes), canon.HashBytes(planBytes)); err != nil {
		t.Fatalf("UpsertToolPlan: %v", err)
	}

	approval, err := st.ApproveDraft(ctx, draft.ID, canon.HashText(draft.Content), ptr(canon.HashBytes(planBytes)))
	if err != nil {
		t.Fatalf("ApproveDraft: %v", err)
	}
	return approval
}

func ptr(s string) *string { return &s }

func TestExecuteRunsApprovedLowRiskTool(t *testing.T) {
	st := newTestStore(t)
	input := map[string]any{"a": 1}
	approval := seedApproval(t, st, "noop", input)

	registry := tools.NewRegistry()
	registry.Register(&fakeTool{name: "noop", risk: domain.RiskLow})

	svc := New(st, registry, 2, testLogger())
	defer svc.Close()

	exe, err := svc.Execute(context.Background(), approval.ID, "noop", input, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exe.Status != domain.ExecutionSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", exe.Status)
	}
}

func TestExecuteRejectsInputNotInToolPlan(t *testing.T) {
	st := newTestStore(t)
	approval := seedApproval(t, st, "noop", map[string]any{"a": 1})

	registry := tools.NewRegistry()
	registry.Register(&fakeTool{name: "noop", risk: domain.RiskLow})

	svc := New(st, registry, 2, testLogger())
	defer svc.Close()

	_, err := svc.Execute(context.Background(), approval.ID, "noop", map[string]any{"a": 2}, nil)
	if err == nil {
		t.Fatal("expected error for tool input not matching the locked plan")
	}
	if e, ok := localflowerr.As(err); !ok || e.Kind != localflowerr.KindConflict {
		t.Fatalf("expected Conflict-kind error, got %v", err)
	}
}

func TestExecuteMediumRiskRequiresConfirmation(t *testing.T) {
	st := newTestStore(t)
	input := map[string]any{"id": "a1"}
	approval := seedApproval(t, st, "send", input)

	registry := tools.NewRegistry()
	registry.Register(&fakeTool{name: "send", risk: domain.RiskMedium})

	svc := New(st, registry, 2, testLogger())
	defer svc.Close()

	if _, err := svc.Execute(context.Background(), approval.ID, "send", input, nil); err == nil {
		t.Fatal("expected error for medium-risk tool with no confirmation")
	}

	exe, err := svc.Execute(context.Background(), approval.ID, "send", input, map[string]any{"approved_actions": []any{"a1"}})
	if err != nil {
		t.Fatalf("Execute with confirmation: %v", err)
	}
	if exe.Status != domain.ExecutionSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", exe.Status)
	}
}

func TestExecuteHighRiskRequiresAllowHighRisk(t *testing.T) {
	st := newTestStore(t)
	input := map[string]any{"id": "a1"}
	approval := seedApproval(t, st, "delete", input)

	registry := tools.NewRegistry()
	registry.Register(&fakeTool{name: "delete", risk: domain.RiskHigh})

	svc := New(st, registry, 2, testLogger())
	defer svc.Close()

	_, err := svc.Execute(context.Background(), approval.ID, "delete", input, map[string]any{"approved_actions": []any{"a1"}})
	if err == nil {
		t.Fatal("expected error for high-risk tool without allow_high_risk")
	}

	exe, err := svc.Execute(context.Background(), approval.ID, "delete", input, map[string]any{
		"approved_actions": []any{"a1"},
		"allow_high_risk":  true,
	})
	if err != nil {
		t.Fatalf("Execute with full confirmation: %v", err)
	}
	if exe.Status != domain.ExecutionSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", exe.Status)
	}
}

func TestExecuteRecordsFailureStatusOnToolError(t *testing.T) {
	st := newTestStore(t)
	input := map[string]any{}
	approval := seedApproval(t, st, "boom", input)

	registry := tools.NewRegistry()
	registry.Register(&fakeTool{
		name: "boom",
		risk: domain.RiskLow,
		run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			return nil, localflowerr.Internal("boom failed")
		},
	})

	svc := New(st, registry, 2, testLogger())
	defer svc.Close()

	exe, err := svc.Execute(context.Background(), approval.ID, "boom", input, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exe.Status != domain.ExecutionFailed {
		t.Fatalf("expected FAILED, got %s", exe.Status)
	}
}

func TestExecuteUnknownToolReturnsNotFound(t *testing.T) {
	st := newTestStore(t)
	approval := seedApproval(t, st, "noop", map[string]any{})

	registry := tools.NewRegistry()
	svc := New(st, registry, 2, testLogger())
	defer svc.Close()

	_, err := svc.Execute(context.Background(), approval.ID, "noop", map[string]any{}, nil)
	if err == nil {
		t.Fatal("expected error for unregistered tool")
	}
	if e, ok := localflowerr.As(err); !ok || e.Kind != localflowerr.KindNotFound {
		t.Fatalf("expected NotFound-kind error, got %v", err)
	}
}
