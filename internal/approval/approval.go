// Package approval implements the Approval Service (C5, §4.5): binding a
// Draft's content and ToolPlan into a content-addressed, immutable
// Approval record.
package approval

import (
	"context"

	"github.com/haasonsaas/localflow/internal/canon"
	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/store"
)

// Service upserts tool plans and approves drafts, keeping invariants
// I2/I3/I4 by construction.
type Service struct {
	store store.Store
}

// New builds an approval Service over the given store.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// UpsertToolPlan canonicalises toolPlan and writes it as the draft's single
// ToolPlan (invariant I2). The draft must be DRAFTING (invariant I1); the
// store enforces this atomically.
func (s *Service) UpsertToolPlan(ctx context.Context, draft *domain.Draft, toolPlan map[string]any) (*domain.ToolPlan, error) {
	if draft.Status != domain.DraftDrafting {
		return nil, localflowerr.Conflict("draft is locked")
	}

	canonBytes, err := canon.Marshal(toolPlan)
	if err != nil {
		return nil, localflowerr.Internal("approval: canonicalise tool plan: %v", err)
	}
	jsonCanonical := string(canonBytes)
	contentHash := canon.HashBytes(canonBytes)

	return s.store.UpsertToolPlan(ctx, draft.ID, jsonCanonical, contentHash)
}

// Approve snapshots draft.Content and the current ToolPlan hash (if any)
// into a new Approval, locking the draft (invariant I4) atomically.
func (s *Service) Approve(ctx context.Context, draft *domain.Draft) (*domain.Approval, error) {
	if draft.Status != domain.DraftDrafting {
		return nil, localflowerr.Conflict("draft already locked")
	}

	draftHash := canon.HashText(draft.Content)

	var toolplanHash *string
	tp, err := s.store.GetToolPlanByDraft(ctx, draft.ID)
	if err != nil {
		return nil, err
	}
	if tp != nil {
		toolplanHash = &tp.ContentHash
	}

	return s.store.ApproveDraft(ctx, draft.ID, draftHash, toolplanHash)
}
