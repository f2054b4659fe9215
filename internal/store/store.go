// Package store defines the persistence contract (C9, §4.9) the rest of
// the server depends on. Two concrete backends satisfy it: sqlite (default,
// pure-Go, single-file) and postgres (optional, for multi-process
// deployments sharing one database).
package store

import (
	"context"

	"github.com/haasonsaas/localflow/internal/domain"
)

// Store is the full persistence surface. Every write method that must be
// atomic with a read (upsert-tool-plan's lock check, approve's hash
// snapshot and lock) performs its own transaction internally — callers
// never see partial writes. FinishExecution is a plain update followed by a
// separate re-read, not a transaction.
type Store interface {
	CreateConversation(ctx context.Context, title string) (*domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, limit, offset int) ([]*domain.Conversation, error)

	AddMessage(ctx context.Context, conversationID, role, content string) (*domain.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)

	// CreateDraft starts a new Draft in DRAFTING state, creating its
	// parent Conversation first when conversationID is empty.
	CreateDraft(ctx context.Context, conversationID string, draftType domain.DraftType, title, content string) (*domain.Draft, error)
	GetDraft(ctx context.Context, id string) (*domain.Draft, error)
	ListDraftsForConversation(ctx context.Context, conversationID string) ([]*domain.Draft, error)

	// UpdateDraft mutates title/content. Returns a Conflict-kind error
	// (invariant I1) when the draft is not DRAFTING.
	UpdateDraft(ctx context.Context, id string, title, content *string) (*domain.Draft, error)

	GetToolPlanByDraft(ctx context.Context, draftID string) (*domain.ToolPlan, error)

	// UpsertToolPlan creates or replaces the Draft's single ToolPlan
	// (invariant I2) with a pre-canonicalised JSON string and its hash.
	// Returns a Conflict-kind error when the draft is not DRAFTING.
	UpsertToolPlan(ctx context.Context, draftID, jsonCanonical, contentHash string) (*domain.ToolPlan, error)

	// ApproveDraft snapshots the draft's content hash and tool-plan hash
	// (if any) into a new Approval and transitions the draft to
	// APPROVED_LOCKED, atomically. Returns a Conflict-kind error when the
	// draft is already locked.
	ApproveDraft(ctx context.Context, draftID, draftHash string, toolplanHash *string) (*domain.Approval, error)

	GetApproval(ctx context.Context, id string) (*domain.Approval, error)
	ListApprovalsForConversation(ctx context.Context, conversationID string) ([]*domain.Approval, error)

	CreateExecution(ctx context.Context, approvalID, toolName, requestJSON string) (*domain.Execution, error)
	FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, resultJSON string) (*domain.Execution, error)
	ListExecutionsForApproval(ctx context.Context, approvalID string) ([]*domain.Execution, error)

	Close() error
}
