package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/haasonsaas/localflow/internal/approval"
	"github.com/haasonsaas/localflow/internal/canon"
	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/llm"
	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/rag"
)

// memStore is a minimal in-memory store.Store used only to exercise the
// orchestrator's control flow; it is not a general-purpose test double for
// every store method.
type memStore struct {
	convs     map[string]*domain.Conversation
	messages  map[string][]*domain.Message
	drafts    map[string]*domain.Draft
	toolPlans map[string]*domain.ToolPlan
	seq       int
}

func newMemStore() *memStore {
	return &memStore{
		convs:     map[string]*domain.Conversation{},
		messages:  map[string][]*domain.Message{},
		drafts:    map[string]*domain.Draft{},
		toolPlans: map[string]*domain.ToolPlan{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) CreateConversation(ctx context.Context, title string) (*domain.Conversation, error) {
	c := &domain.Conversation{ID: m.nextID("conv"), Title: title}
	m.convs[c.ID] = c
	return c, nil
}
func (m *memStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	c, ok := m.convs[id]
	if !ok {
		return nil, localflowerr.NotFound("conversation not found")
	}
	return c, nil
}
func (m *memStore) ListConversations(ctx context.Context, limit, offset int) ([]*domain.Conversation, error) {
	return nil, nil
}
func (m *memStore) AddMessage(ctx context.Context, conversationID, role, content string) (*domain.Message, error) {
	msg := &domain.Message{ID: m.nextID("msg"), ConversationID: conversationID, Role: role, Content: content}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	return msg, nil
}
func (m *memStore) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	return m.messages[conversationID], nil
}
func (m *memStore) CreateDraft(ctx context.Context, conversationID string, draftType domain.DraftType, title, content string) (*domain.Draft, error) {
	d := &domain.Draft{
		ID: m.nextID("draft"), ConversationID: conversationID, Type: draftType,
		Title: title, Content: content, Status: domain.DraftDrafting,
	}
	m.drafts[d.ID] = d
	return d, nil
}
func (m *memStore) GetDraft(ctx context.Context, id string) (*domain.Draft, error) {
	d, ok := m.drafts[id]
	if !ok {
		return nil, localflowerr.NotFound("draft not found")
	}
	return d, nil
}
func (m *memStore) ListDraftsForConversation(ctx context.Context, conversationID string) ([]*domain.Draft, error) {
	return nil, nil
}
func (m *memStore) UpdateDraft(ctx context.Context, id string, title, content *string) (*domain.Draft, error) {
	return nil, nil
}
func (m *memStore) GetToolPlanByDraft(ctx context.Context, draftID string) (*domain.ToolPlan, error) {
	return m.toolPlans[draftID], nil
}
func (m *memStore) UpsertToolPlan(ctx context.Context, draftID, jsonCanonical, contentHash string) (*domain.ToolPlan, error) {
	tp := &domain.ToolPlan{ID: m.nextID("tp"), DraftID: draftID, JSONCanonical: jsonCanonical, ContentHash: contentHash}
	m.toolPlans[draftID] = tp
	return tp, nil
}
func (m *memStore) ApproveDraft(ctx context.Context, draftID, draftHash string, toolplanHash *string) (*domain.Approval, error) {
	return nil, nil
}
func (m *memStore) GetApproval(ctx context.Context, id string) (*domain.Approval, error) { return nil, nil }
func (m *memStore) ListApprovalsForConversation(ctx context.Context, conversationID string) ([]*domain.Approval, error) {
	return nil, nil
}
func (m *memStore) CreateExecution(ctx context.Context, approvalID, toolName, requestJSON string) (*domain.Execution, error) {
	return nil, nil
}
func (m *memStore) FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, resultJSON string) (*domain.Execution, error) {
	return nil, nil
}
func (m *memStore) ListExecutionsForApproval(ctx context.Context, approvalID string) ([]*domain.Execution, error) {
	return nil, nil
}
func (m *memStore) Close() error { return nil }

type fakeProvider struct {
	resp *llm.DraftResponse
	err  error
}

func (f *fakeProvider) GenerateDraft(ctx context.Context, userMessage string, history []llm.HistoryMessage) (*llm.DraftResponse, error) {
	return f.resp, f.err
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHandlePersistsDraftAndToolPlan(t *testing.T) {
	st := newMemStore()
	ragSvc, err := rag.New(rag.Config{StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("rag.New: %v", err)
	}
	approvals := approval.New(st)
	provider := &fakeProvider{resp: &llm.DraftResponse{
		AssistantMessage: "ok",
		Draft:            &llm.DraftOut{Type: llm.DraftKindLinkedIn, Title: "t", Content: "Here is a LinkedIn post draft."},
		ToolPlan: &llm.ToolPlanOut{Actions: []llm.ToolAction{{
			Tool: "open_links", Risk: "LOW",
			Params: map[string]any{"urls": []any{"https://www.linkedin.com/in/janedoe"}},
		}}},
	}}
	svc := New(st, provider, ragSvc, approvals, testLogger())

	turn, err := svc.Handle(context.Background(), Request{Message: "find jane doe's linkedin profile"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if turn.Draft == nil {
		t.Fatal("expected a persisted draft")
	}
	if turn.Draft.Status != domain.DraftDrafting {
		t.Errorf("draft status = %v, want DRAFTING", turn.Draft.Status)
	}

	tp := st.toolPlans[turn.Draft.ID]
	if tp == nil {
		t.Fatal("expected a tool plan to be upserted")
	}
	wantHash := canon.HashBytes([]byte(tp.JSONCanonical))
	if tp.ContentHash != wantHash {
		t.Errorf("ContentHash = %s, want %s (mismatched canonicalisation)", tp.ContentHash, wantHash)
	}

	msgs := st.messages[turn.ConversationID]
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("messages = %+v, want exactly [user, assistant]", msgs)
	}
}

func TestHandleShortCircuitsWhenNoPermissions(t *testing.T) {
	st := newMemStore()
	ragSvc, err := rag.New(rag.Config{StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("rag.New: %v", err)
	}
	approvals := approval.New(st)
	svc := New(st, &fakeProvider{}, ragSvc, approvals, testLogger())

	turn, err := svc.Handle(context.Background(), Request{Message: "find my readme.md file"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !turn.RAGPermissionRequired {
		t.Error("expected RAGPermissionRequired=true")
	}
	if turn.SuggestedPath == "" {
		t.Error("expected a suggested path")
	}
	if turn.Draft != nil {
		t.Error("expected no draft to be created on permission short-circuit")
	}
}

func TestHandleUnknownConversationIsNotFound(t *testing.T) {
	st := newMemStore()
	ragSvc, _ := rag.New(rag.Config{StoreDir: t.TempDir()})
	svc := New(st, &fakeProvider{}, ragSvc, approval.New(st), testLogger())

	_, err := svc.Handle(context.Background(), Request{ConversationID: "missing", Message: "hi"})
	lfErr, ok := localflowerr.As(err)
	if !ok || lfErr.Kind != localflowerr.KindNotFound {
		t.Fatalf("err = %v, want a NOT_FOUND localflowerr", err)
	}
}
