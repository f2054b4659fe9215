// Package postgres implements store.Store against Postgres/CockroachDB via
// lib/pq, for deployments that want one shared database across multiple
// server processes instead of the default single-file sqlite store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS drafts (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	type TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drafts_conversation ON drafts(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS tool_plans (
	id TEXT PRIMARY KEY,
	draft_id TEXT NOT NULL UNIQUE REFERENCES drafts(id),
	json_canonical TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
	id TEXT PRIMARY KEY,
	draft_id TEXT NOT NULL REFERENCES drafts(id),
	draft_hash TEXT NOT NULL,
	toolplan_hash TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_approvals_draft ON approvals(draft_id);

CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	approval_id TEXT NOT NULL REFERENCES approvals(id),
	tool_name TEXT NOT NULL,
	request_json TEXT NOT NULL,
	result_json TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_approval ON executions(approval_id);
`

// Store is the lib/pq-backed store.Store implementation.
type Store struct {
	db *sql.DB
}

// Config holds the connection parameters for the shared database.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to Postgres/CockroachDB at cfg.DSN and ensures the schema
// exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// rebind rewrites sqlite-style "?" placeholders into lib/pq's positional
// "$1", "$2", ... form, so the query bodies below read identically to the
// sqlite backend's.
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func now() time.Time { return time.Now().UTC() }

func (s *Store) CreateConversation(ctx context.Context, title string) (*domain.Conversation, error) {
	id := uuid.NewString()
	createdAt := now()
	_, err := s.db.ExecContext(ctx, rebind(`INSERT INTO conversations (id, title, created_at) VALUES (?, ?, ?)`), id, title, createdAt)
	if err != nil {
		return nil, localflowerr.Internal("postgres: create conversation: %v", err)
	}
	return &domain.Conversation{ID: id, Title: title, CreatedAt: createdAt}, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, rebind(`SELECT id, title, created_at FROM conversations WHERE id = ?`), id)
	var c domain.Conversation
	if err := row.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("conversation not found: %s", id)
		}
		return nil, localflowerr.Internal("postgres: get conversation: %v", err)
	}
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context, limit, offset int) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		rebind(`SELECT id, title, created_at FROM conversations ORDER BY created_at DESC LIMIT ? OFFSET ?`),
		limit, offset,
	)
	if err != nil {
		return nil, localflowerr.Internal("postgres: list conversations: %v", err)
	}
	defer rows.Close()
	var out []*domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
			return nil, localflowerr.Internal("postgres: scan conversation: %v", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string) (*domain.Message, error) {
	id := uuid.NewString()
	createdAt := now()
	_, err := s.db.ExecContext(ctx,
		rebind(`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`),
		id, conversationID, role, content, createdAt,
	)
	if err != nil {
		return nil, localflowerr.Internal("postgres: add message: %v", err)
	}
	return &domain.Message{ID: id, ConversationID: conversationID, Role: role, Content: content, CreatedAt: createdAt}, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		rebind(`SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`),
		conversationID,
	)
	if err != nil {
		return nil, localflowerr.Internal("postgres: list messages: %v", err)
	}
	defer rows.Close()
	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, localflowerr.Internal("postgres: scan message: %v", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) CreateDraft(ctx context.Context, conversationID string, draftType domain.DraftType, title, content string) (*domain.Draft, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, localflowerr.Internal("postgres: begin tx: %v", err)
	}
	defer tx.Rollback()

	if conversationID == "" {
		conversationID = uuid.NewString()
		title := defaultConversationTitle(content)
		if _, err := tx.ExecContext(ctx, rebind(`INSERT INTO conversations (id, title, created_at) VALUES (?, ?, ?)`), conversationID, title, now()); err != nil {
			return nil, localflowerr.Internal("postgres: create conversation: %v", err)
		}
	}

	id := uuid.NewString()
	ts := now()
	if _, err := tx.ExecContext(ctx,
		rebind(`INSERT INTO drafts (id, conversation_id, type, title, content, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		id, conversationID, string(draftType), title, content, string(domain.DraftDrafting), ts, ts,
	); err != nil {
		return nil, localflowerr.Internal("postgres: create draft: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, localflowerr.Internal("postgres: commit: %v", err)
	}
	return &domain.Draft{
		ID: id, ConversationID: conversationID, Type: draftType, Title: title, Content: content,
		Status: domain.DraftDrafting, CreatedAt: ts, UpdatedAt: ts,
	}, nil
}

func defaultConversationTitle(firstMessage string) string {
	r := []rune(firstMessage)
	if len(r) > 60 {
		return string(r[:60])
	}
	return firstMessage
}

func (s *Store) GetDraft(ctx context.Context, id string) (*domain.Draft, error) {
	row := s.db.QueryRowContext(ctx,
		rebind(`SELECT id, conversation_id, type, title, content, status, created_at, updated_at FROM drafts WHERE id = ?`),
		id,
	)
	var d domain.Draft
	var draftType, status string
	if err := row.Scan(&d.ID, &d.ConversationID, &draftType, &d.Title, &d.Content, &status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("draft not found: %s", id)
		}
		return nil, localflowerr.Internal("postgres: get draft: %v", err)
	}
	d.Type = domain.DraftType(draftType)
	d.Status = domain.DraftStatus(status)
	return &d, nil
}

func (s *Store) ListDraftsForConversation(ctx context.Context, conversationID string) ([]*domain.Draft, error) {
	rows, err := s.db.QueryContext(ctx,
		rebind(`SELECT id, conversation_id, type, title, content, status, created_at, updated_at FROM drafts WHERE conversation_id = ? ORDER BY created_at DESC`),
		conversationID,
	)
	if err != nil {
		return nil, localflowerr.Internal("postgres: list drafts: %v", err)
	}
	defer rows.Close()
	var out []*domain.Draft
	for rows.Next() {
		var d domain.Draft
		var draftType, status string
		if err := rows.Scan(&d.ID, &d.ConversationID, &draftType, &d.Title, &d.Content, &status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, localflowerr.Internal("postgres: scan draft: %v", err)
		}
		d.Type = domain.DraftType(draftType)
		d.Status = domain.DraftStatus(status)
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDraft(ctx context.Context, id string, title, content *string) (*domain.Draft, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, localflowerr.Internal("postgres: begin tx: %v", err)
	}
	defer tx.Rollback()

	var status string
	if err := tx.QueryRowContext(ctx, rebind(`SELECT status FROM drafts WHERE id = ?`), id).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("draft not found: %s", id)
		}
		return nil, localflowerr.Internal("postgres: read draft status: %v", err)
	}
	if domain.DraftStatus(status) != domain.DraftDrafting {
		return nil, localflowerr.Conflict("draft %s is locked and cannot be edited", id)
	}

	ts := now()
	if title != nil {
		if _, err := tx.ExecContext(ctx, rebind(`UPDATE drafts SET title = ?, updated_at = ? WHERE id = ?`), *title, ts, id); err != nil {
			return nil, localflowerr.Internal("postgres: update draft title: %v", err)
		}
	}
	if content != nil {
		if _, err := tx.ExecContext(ctx, rebind(`UPDATE drafts SET content = ?, updated_at = ? WHERE id = ?`), *content, ts, id); err != nil {
			return nil, localflowerr.Internal("postgres: update draft content: %v", err)
		}
	}

	row := tx.QueryRowContext(ctx,
		rebind(`SELECT id, conversation_id, type, title, content, status, created_at, updated_at FROM drafts WHERE id = ?`),
		id,
	)
	var d domain.Draft
	var draftType, stat string
	if err := row.Scan(&d.ID, &d.ConversationID, &draftType, &d.Title, &d.Content, &stat, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, localflowerr.Internal("postgres: reread draft: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, localflowerr.Internal("postgres: commit: %v", err)
	}
	d.Type = domain.DraftType(draftType)
	d.Status = domain.DraftStatus(stat)
	return &d, nil
}

func (s *Store) GetToolPlanByDraft(ctx context.Context, draftID string) (*domain.ToolPlan, error) {
	row := s.db.QueryRowContext(ctx,
		rebind(`SELECT id, draft_id, json_canonical, content_hash, created_at FROM tool_plans WHERE draft_id = ?`),
		draftID,
	)
	var tp domain.ToolPlan
	if err := row.Scan(&tp.ID, &tp.DraftID, &tp.JSONCanonical, &tp.ContentHash, &tp.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, localflowerr.Internal("postgres: get tool plan: %v", err)
	}
	return &tp, nil
}

func (s *Store) UpsertToolPlan(ctx context.Context, draftID, jsonCanonical, contentHash string) (*domain.ToolPlan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, localflowerr.Internal("postgres: begin tx: %v", err)
	}
	defer tx.Rollback()

	var status string
	if err := tx.QueryRowContext(ctx, rebind(`SELECT status FROM drafts WHERE id = ?`), draftID).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("draft not found: %s", draftID)
		}
		return nil, localflowerr.Internal("postgres: read draft status: %v", err)
	}
	if domain.DraftStatus(status) != domain.DraftDrafting {
		return nil, localflowerr.Conflict("draft is locked")
	}

	var existingID string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, rebind(`SELECT id, created_at FROM tool_plans WHERE draft_id = ?`), draftID).Scan(&existingID, &createdAt)
	switch {
	case err == sql.ErrNoRows:
		existingID = uuid.NewString()
		createdAt = now()
		if _, err := tx.ExecContext(ctx,
			rebind(`INSERT INTO tool_plans (id, draft_id, json_canonical, content_hash, created_at) VALUES (?, ?, ?, ?, ?)`),
			existingID, draftID, jsonCanonical, contentHash, createdAt,
		); err != nil {
			return nil, localflowerr.Internal("postgres: insert tool plan: %v", err)
		}
	case err != nil:
		return nil, localflowerr.Internal("postgres: read existing tool plan: %v", err)
	default:
		if _, err := tx.ExecContext(ctx, rebind(`UPDATE tool_plans SET json_canonical = ?, content_hash = ? WHERE id = ?`), jsonCanonical, contentHash, existingID); err != nil {
			return nil, localflowerr.Internal("postgres: update tool plan: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, localflowerr.Internal("postgres: commit: %v", err)
	}
	return &domain.ToolPlan{ID: existingID, DraftID: draftID, JSONCanonical: jsonCanonical, ContentHash: contentHash, CreatedAt: createdAt}, nil
}

func (s *Store) ApproveDraft(ctx context.Context, draftID, draftHash string, toolplanHash *string) (*domain.Approval, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, localflowerr.Internal("postgres: begin tx: %v", err)
	}
	defer tx.Rollback()

	var status string
	if err := tx.QueryRowContext(ctx, rebind(`SELECT status FROM drafts WHERE id = ?`), draftID).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("draft not found: %s", draftID)
		}
		return nil, localflowerr.Internal("postgres: read draft status: %v", err)
	}
	if domain.DraftStatus(status) != domain.DraftDrafting {
		return nil, localflowerr.Conflict("draft already locked")
	}

	id := uuid.NewString()
	ts := now()
	if _, err := tx.ExecContext(ctx,
		rebind(`INSERT INTO approvals (id, draft_id, draft_hash, toolplan_hash, created_at) VALUES (?, ?, ?, ?, ?)`),
		id, draftID, draftHash, toolplanHash, ts,
	); err != nil {
		return nil, localflowerr.Internal("postgres: insert approval: %v", err)
	}
	if _, err := tx.ExecContext(ctx, rebind(`UPDATE drafts SET status = ?, updated_at = ? WHERE id = ?`), string(domain.DraftApprovedLocked), ts, draftID); err != nil {
		return nil, localflowerr.Internal("postgres: lock draft: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, localflowerr.Internal("postgres: commit: %v", err)
	}
	return &domain.Approval{ID: id, DraftID: draftID, DraftHash: draftHash, ToolplanHash: toolplanHash, CreatedAt: ts}, nil
}

func (s *Store) GetApproval(ctx context.Context, id string) (*domain.Approval, error) {
	row := s.db.QueryRowContext(ctx, rebind(`SELECT id, draft_id, draft_hash, toolplan_hash, created_at FROM approvals WHERE id = ?`), id)
	var a domain.Approval
	var toolplanHash sql.NullString
	if err := row.Scan(&a.ID, &a.DraftID, &a.DraftHash, &toolplanHash, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("approval not found: %s", id)
		}
		return nil, localflowerr.Internal("postgres: get approval: %v", err)
	}
	if toolplanHash.Valid {
		a.ToolplanHash = &toolplanHash.String
	}
	return &a, nil
}

func (s *Store) ListApprovalsForConversation(ctx context.Context, conversationID string) ([]*domain.Approval, error) {
	rows, err := s.db.QueryContext(ctx,
		rebind(`SELECT a.id, a.draft_id, a.draft_hash, a.toolplan_hash, a.created_at
		 FROM approvals a JOIN drafts d ON d.id = a.draft_id
		 WHERE d.conversation_id = ? ORDER BY a.created_at ASC`),
		conversationID,
	)
	if err != nil {
		return nil, localflowerr.Internal("postgres: list approvals: %v", err)
	}
	defer rows.Close()
	var out []*domain.Approval
	for rows.Next() {
		var a domain.Approval
		var toolplanHash sql.NullString
		if err := rows.Scan(&a.ID, &a.DraftID, &a.DraftHash, &toolplanHash, &a.CreatedAt); err != nil {
			return nil, localflowerr.Internal("postgres: scan approval: %v", err)
		}
		if toolplanHash.Valid {
			a.ToolplanHash = &toolplanHash.String
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *Store) CreateExecution(ctx context.Context, approvalID, toolName, requestJSON string) (*domain.Execution, error) {
	id := uuid.NewString()
	createdAt := now()
	_, err := s.db.ExecContext(ctx,
		rebind(`INSERT INTO executions (id, approval_id, tool_name, request_json, result_json, status, created_at) VALUES (?, ?, ?, ?, '', ?, ?)`),
		id, approvalID, toolName, requestJSON, string(domain.ExecutionRunning), createdAt,
	)
	if err != nil {
		return nil, localflowerr.Internal("postgres: create execution: %v", err)
	}
	return &domain.Execution{ID: id, ApprovalID: approvalID, ToolName: toolName, RequestJSON: requestJSON, Status: domain.ExecutionRunning, CreatedAt: createdAt}, nil
}

func (s *Store) FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, resultJSON string) (*domain.Execution, error) {
	_, err := s.db.ExecContext(ctx, rebind(`UPDATE executions SET status = ?, result_json = ? WHERE id = ?`), string(status), resultJSON, id)
	if err != nil {
		return nil, localflowerr.Internal("postgres: finish execution: %v", err)
	}
	row := s.db.QueryRowContext(ctx, rebind(`SELECT id, approval_id, tool_name, request_json, result_json, status, created_at FROM executions WHERE id = ?`), id)
	var e domain.Execution
	var st string
	if err := row.Scan(&e.ID, &e.ApprovalID, &e.ToolName, &e.RequestJSON, &e.ResultJSON, &st, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("execution not found: %s", id)
		}
		return nil, localflowerr.Internal("postgres: reread execution: %v", err)
	}
	e.Status = domain.ExecutionStatus(st)
	return &e, nil
}

func (s *Store) ListExecutionsForApproval(ctx context.Context, approvalID string) ([]*domain.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		rebind(`SELECT id, approval_id, tool_name, request_json, result_json, status, created_at FROM executions WHERE approval_id = ? ORDER BY created_at ASC`),
		approvalID,
	)
	if err != nil {
		return nil, localflowerr.Internal("postgres: list executions: %v", err)
	}
	defer rows.Close()
	var out []*domain.Execution
	for rows.Next() {
		var e domain.Execution
		var status string
		if err := rows.Scan(&e.ID, &e.ApprovalID, &e.ToolName, &e.RequestJSON, &e.ResultJSON, &status, &e.CreatedAt); err != nil {
			return nil, localflowerr.Internal("postgres: scan execution: %v", err)
		}
		e.Status = domain.ExecutionStatus(status)
		out = append(out, &e)
	}
	return out, rows.Err()
}
