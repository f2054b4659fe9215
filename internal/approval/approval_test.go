package approval

import (
	"context"
	"testing"

	"github.com/haasonsaas/localflow/internal/canon"
	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestUpsertToolPlanCanonicalisesAndHashes(t *testing.T) {
	st := newTestStore(t)
	svc := New(st)
	ctx := context.Background()

	draft, err := st.CreateDraft(ctx, "", domain.DraftTypeEmail, "subject", "body")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}

	plan := map[string]any{"actions": []any{map[string]any{"tool": "noop", "params": map[string]any{"b": 1, "a": 2}}}}
	tp, err := svc.UpsertToolPlan(ctx, draft, plan)
	if err != nil {
		t.Fatalf("UpsertToolPlan: %v", err)
	}

	wantBytes, err := canon.Marshal(plan)
	if err != nil {
		t.Fatalf("canon.Marshal: %v", err)
	}
	if tp.JSONCanonical != string(wantBytes) {
		t.Fatalf("stored plan not canonicalised: got %s want %s", tp.JSONCanonical, wantBytes)
	}
	if tp.ContentHash != canon.HashBytes(wantBytes) {
		t.Fatalf("content hash mismatch: got %s want %s", tp.ContentHash, canon.HashBytes(wantBytes))
	}
}

func TestUpsertToolPlanRejectsLockedDraft(t *testing.T) {
	st := newTestStore(t)
	svc := New(st)
	ctx := context.Background()

	draft, err := st.CreateDraft(ctx, "", domain.DraftTypeEmail, "subject", "body")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	draft.Status = domain.DraftApprovedLocked

	_, err = svc.UpsertToolPlan(ctx, draft, map[string]any{})
	if err == nil {
		t.Fatal("expected error upserting tool plan on a locked draft")
	}
	if e, ok := localflowerr.As(err); !ok || e.Kind != localflowerr.KindConflict {
		t.Fatalf("expected Conflict-kind error, got %v", err)
	}
}

func TestApproveSnapshotsHashesAndLocksDraft(t *testing.T) {
	st := newTestStore(t)
	svc := New(st)
	ctx := context.Background()

	draft, err := st.CreateDraft(ctx, "", domain.DraftTypeEmail, "subject", "the body")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	plan := map[string]any{"actions": []any{}}
	tp, err := svc.UpsertToolPlan(ctx, draft, plan)
	if err != nil {
		t.Fatalf("UpsertToolPlan: %v", err)
	}

	approval, err := svc.Approve(ctx, draft)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approval.DraftHash != canon.HashText(draft.Content) {
		t.Fatalf("draft hash mismatch: got %s", approval.DraftHash)
	}
	if approval.ToolplanHash == nil || *approval.ToolplanHash != tp.ContentHash {
		t.Fatalf("toolplan hash mismatch: got %v want %s", approval.ToolplanHash, tp.ContentHash)
	}

	locked, err := st.GetDraft(ctx, draft.ID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if locked.Status != domain.DraftApprovedLocked {
		t.Fatalf("expected draft locked after approval, got status %s", locked.Status)
	}
}

func TestApproveWithoutToolPlanLeavesToolplanHashNil(t *testing.T) {
	st := newTestStore(t)
	svc := New(st)
	ctx := context.Background()

	draft, err := st.CreateDraft(ctx, "", domain.DraftTypeEmail, "subject", "body")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}

	approval, err := svc.Approve(ctx, draft)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approval.ToolplanHash != nil {
		t.Fatalf("expected nil toolplan hash with no tool plan, got %v", *approval.ToolplanHash)
	}
}

func TestApproveRejectsAlreadyLockedDraft(t *testing.T) {
	st := newTestStore(t)
	svc := New(st)
	ctx := context.Background()

	draft, err := st.CreateDraft(ctx, "", domain.DraftTypeEmail, "subject", "body")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	draft.Status = domain.DraftApprovedLocked

	_, err = svc.Approve(ctx, draft)
	if err == nil {
		t.Fatal("expected error approving an already-locked draft")
	}
	if e, ok := localflowerr.As(err); !ok || e.Kind != localflowerr.KindConflict {
		t.Fatalf("expected Conflict-kind error, got %v", err)
	}
}
