package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/localflow/internal/approval"
	"github.com/haasonsaas/localflow/internal/chat"
	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/llm"
	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/rag"
)

// memStore is a minimal in-memory store.Store, mirroring the chat package's
// own test double, used here to exercise the transport layer end to end.
type memStore struct {
	convs     map[string]*domain.Conversation
	messages  map[string][]*domain.Message
	drafts    map[string]*domain.Draft
	toolPlans map[string]*domain.ToolPlan
	approvals map[string]*domain.Approval
	seq       int
}

func newMemStore() *memStore {
	return &memStore{
		convs:     map[string]*domain.Conversation{},
		messages:  map[string][]*domain.Message{},
		drafts:    map[string]*domain.Draft{},
		toolPlans: map[string]*domain.ToolPlan{},
		approvals: map[string]*domain.Approval{},
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
	var out []*domain.Conversation
	for _, c := range m.convs {
		out = append(out, c)
	}
	return out, nil
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
	var out []*domain.Draft
	for _, d := range m.drafts {
		if d.ConversationID == conversationID {
			out = append(out, d)
		}
	}
	return out, nil
}
func (m *memStore) UpdateDraft(ctx context.Context, id string, title, content *string) (*domain.Draft, error) {
	d, ok := m.drafts[id]
	if !ok {
		return nil, localflowerr.NotFound("draft not found")
	}
	if d.Status != domain.DraftDrafting {
		return nil, localflowerr.Conflict("draft is locked")
	}
	if title != nil {
		d.Title = *title
	}
	if content != nil {
		d.Content = *content
	}
	return d, nil
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
	d, ok := m.drafts[draftID]
	if !ok {
		return nil, localflowerr.NotFound("draft not found")
	}
	if d.Status != domain.DraftDrafting {
		return nil, localflowerr.Conflict("draft already locked")
	}
	d.Status = domain.DraftApprovedLocked
	a := &domain.Approval{
		ID: m.nextID("appr"), DraftID: draftID, DraftHash: draftHash, ToolplanHash: toolplanHash,
	}
	m.approvals[a.ID] = a
	return a, nil
}
func (m *memStore) GetApproval(ctx context.Context, id string) (*domain.Approval, error) {
	a, ok := m.approvals[id]
	if !ok {
		return nil, localflowerr.NotFound("approval not found")
	}
	return a, nil
}
func (m *memStore) ListApprovalsForConversation(ctx context.Context, conversationID string) ([]*domain.Approval, error) {
	var out []*domain.Approval
	for _, a := range m.approvals {
		if d, ok := m.drafts[a.DraftID]; ok && d.ConversationID == conversationID {
			out = append(out, a)
		}
	}
	return out, nil
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

func newTestHandler(t *testing.T) (*Handler, *memStore) {
	t.Helper()
	st := newMemStore()
	ragSvc, err := rag.New(rag.Config{StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("rag.New: %v", err)
	}
	approvals := approval.New(st)
	provider := &fakeProvider{resp: &llm.DraftResponse{
		AssistantMessage: "ok",
		Draft:            &llm.DraftOut{Type: llm.DraftKindRoutine, Title: "t", Content: "hello there"},
	}}
	chatSvc := chat.New(st, provider, ragSvc, approvals, testLogger())
	h := NewHandler(&Config{
		Store: st, Chat: chatSvc, Approvals: approvals, RAG: ragSvc,
		Logger: testLogger(), AppName: "localflow", Env: "test", LLMProvider: "ollama",
	})
	return h, st
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
}

func TestHandleChatPersistsDraft(t *testing.T) {
	h, _ := newTestHandler(t)
	body := `{"message":"draft a reply saying hi"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	decodeBody(t, rec, &resp)
	if resp.Draft == nil || resp.Draft.Status != "DRAFTING" {
		t.Fatalf("resp.Draft = %+v, want a DRAFTING draft", resp.Draft)
	}
}

func TestHandleChatAndApproveFlow(t *testing.T) {
	h, _ := newTestHandler(t)

	chatReq := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"draft a reply"}`))
	chatRec := httptest.NewRecorder()
	h.ServeHTTP(chatRec, chatReq)
	var resp chatResponse
	decodeBody(t, chatRec, &resp)
	if resp.Draft == nil {
		t.Fatal("expected a draft")
	}

	approveReq := httptest.NewRequest(http.MethodPost, "/v1/drafts/"+resp.Draft.ID+"/approve", nil)
	approveRec := httptest.NewRecorder()
	h.ServeHTTP(approveRec, approveReq)
	if approveRec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body = %s", approveRec.Code, approveRec.Body.String())
	}

	updateReq := httptest.NewRequest(http.MethodPost, "/v1/drafts/"+resp.Draft.ID+"/update", strings.NewReader(`{"content":"edited"}`))
	updateRec := httptest.NewRecorder()
	h.ServeHTTP(updateRec, updateReq)
	if updateRec.Code != http.StatusConflict {
		t.Fatalf("update-after-approve status = %d, want 409", updateRec.Code)
	}
	var envelope errorEnvelope
	decodeBody(t, updateRec, &envelope)
	if envelope.ErrorCode != "CONFLICT" || !strings.Contains(strings.ToLower(envelope.Detail), "locked") {
		t.Fatalf("envelope = %+v, want CONFLICT mentioning locked", envelope)
	}
}

func TestHandleRAGSearchBeforeGrantReturnsEmpty(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/rag/search", strings.NewReader(`{"query":"alpha"}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp hitsResponse
	decodeBody(t, rec, &resp)
	if len(resp.Hits) != 0 {
		t.Errorf("Hits = %v, want empty before any grant", resp.Hits)
	}
}

func TestHandleRAGPermissionsGrantRejectsMissingDir(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/rag/permissions/grant", strings.NewReader(`{"path":"/nonexistent/path/for/sure"}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleConversationNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/missing", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp healthResponse
	decodeBody(t, rec, &resp)
	if resp.AppName != "localflow" || !resp.ProviderPresent {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	h, _ := newTestHandler(t)
	mounted := h.Mount()
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(correlationHeader, "test-cid-123")
	rec := httptest.NewRecorder()

	mounted.ServeHTTP(rec, req)

	if got := rec.Header().Get(correlationHeader); got != "test-cid-123" {
		t.Errorf("correlation header = %q, want echoed value", got)
	}
}
