// Package sqlite implements store.Store against a local SQLite file using
// the pure-Go modernc.org/sqlite driver, so the server needs no CGO
// toolchain to run.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS drafts (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	type TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drafts_conversation ON drafts(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS tool_plans (
	id TEXT PRIMARY KEY,
	draft_id TEXT NOT NULL UNIQUE REFERENCES drafts(id),
	json_canonical TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
	id TEXT PRIMARY KEY,
	draft_id TEXT NOT NULL REFERENCES drafts(id),
	draft_hash TEXT NOT NULL,
	toolplan_hash TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_approvals_draft ON approvals(draft_id);

CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	approval_id TEXT NOT NULL REFERENCES approvals(id),
	tool_name TEXT NOT NULL,
	request_json TEXT NOT NULL,
	result_json TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_approval ON executions(approval_id);
`

// Store is the sqlite-backed store.Store implementation.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database file at path and
// ensures the schema exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func (s *Store) CreateConversation(ctx context.Context, title string) (*domain.Conversation, error) {
	id := uuid.NewString()
	createdAt := now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at) VALUES (?, ?, ?)`,
		id, title, createdAt,
	)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: create conversation: %v", err)
	}
	return &domain.Conversation{ID: id, Title: title, CreatedAt: parseTime(createdAt)}, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, created_at FROM conversations WHERE id = ?`, id)
	var c domain.Conversation
	var createdAt string
	if err := row.Scan(&c.ID, &c.Title, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("conversation not found: %s", id)
		}
		return nil, localflowerr.Internal("sqlite: get conversation: %v", err)
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context, limit, offset int) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM conversations ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: list conversations: %v", err)
	}
	defer rows.Close()

	var out []*domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Title, &createdAt); err != nil {
			return nil, localflowerr.Internal("sqlite: scan conversation: %v", err)
		}
		c.CreatedAt = parseTime(createdAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string) (*domain.Message, error) {
	id := uuid.NewString()
	createdAt := now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, conversationID, role, content, createdAt,
	)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: add message: %v", err)
	}
	return &domain.Message{
		ID: id, ConversationID: conversationID, Role: role, Content: content,
		CreatedAt: parseTime(createdAt),
	}, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: list messages: %v", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, localflowerr.Internal("sqlite: scan message: %v", err)
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) CreateDraft(ctx context.Context, conversationID string, draftType domain.DraftType, title, content string) (*domain.Draft, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: begin tx: %v", err)
	}
	defer tx.Rollback()

	if conversationID == "" {
		conversationID = uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, title, created_at) VALUES (?, ?, ?)`,
			conversationID, defaultConversationTitle(content), now(),
		); err != nil {
			return nil, localflowerr.Internal("sqlite: create conversation: %v", err)
		}
	}

	id := uuid.NewString()
	ts := now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO drafts (id, conversation_id, type, title, content, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, conversationID, string(draftType), title, content, string(domain.DraftDrafting), ts, ts,
	); err != nil {
		return nil, localflowerr.Internal("sqlite: create draft: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, localflowerr.Internal("sqlite: commit: %v", err)
	}

	return &domain.Draft{
		ID: id, ConversationID: conversationID, Type: draftType, Title: title, Content: content,
		Status: domain.DraftDrafting, CreatedAt: parseTime(ts), UpdatedAt: parseTime(ts),
	}, nil
}

func defaultConversationTitle(firstMessage string) string {
	r := []rune(firstMessage)
	if len(r) > 60 {
		return string(r[:60])
	}
	return firstMessage
}

func (s *Store) scanDraft(row *sql.Row) (*domain.Draft, error) {
	var d domain.Draft
	var draftType, status, createdAt, updatedAt string
	if err := row.Scan(&d.ID, &d.ConversationID, &draftType, &d.Title, &d.Content, &status, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("draft not found")
		}
		return nil, localflowerr.Internal("sqlite: scan draft: %v", err)
	}
	d.Type = domain.DraftType(draftType)
	d.Status = domain.DraftStatus(status)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func (s *Store) GetDraft(ctx context.Context, id string) (*domain.Draft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, type, title, content, status, created_at, updated_at FROM drafts WHERE id = ?`,
		id,
	)
	d, err := s.scanDraft(row)
	if err != nil {
		if e, ok := localflowerr.As(err); ok && e.Kind == localflowerr.KindNotFound {
			return nil, localflowerr.NotFound("draft not found: %s", id)
		}
		return nil, err
	}
	return d, nil
}

func (s *Store) ListDraftsForConversation(ctx context.Context, conversationID string) ([]*domain.Draft, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, type, title, content, status, created_at, updated_at
		 FROM drafts WHERE conversation_id = ? ORDER BY created_at DESC`,
		conversationID,
	)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: list drafts: %v", err)
	}
	defer rows.Close()

	var out []*domain.Draft
	for rows.Next() {
		var d domain.Draft
		var draftType, status, createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.ConversationID, &draftType, &d.Title, &d.Content, &status, &createdAt, &updatedAt); err != nil {
			return nil, localflowerr.Internal("sqlite: scan draft: %v", err)
		}
		d.Type = domain.DraftType(draftType)
		d.Status = domain.DraftStatus(status)
		d.CreatedAt = parseTime(createdAt)
		d.UpdatedAt = parseTime(updatedAt)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// UpdateDraft enforces invariant I1: only a DRAFTING draft may change.
func (s *Store) UpdateDraft(ctx context.Context, id string, title, content *string) (*domain.Draft, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: begin tx: %v", err)
	}
	defer tx.Rollback()

	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM drafts WHERE id = ?`, id).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("draft not found: %s", id)
		}
		return nil, localflowerr.Internal("sqlite: read draft status: %v", err)
	}
	if domain.DraftStatus(status) != domain.DraftDrafting {
		return nil, localflowerr.Conflict("draft %s is locked and cannot be edited", id)
	}

	ts := now()
	if title != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE drafts SET title = ?, updated_at = ? WHERE id = ?`, *title, ts, id); err != nil {
			return nil, localflowerr.Internal("sqlite: update draft title: %v", err)
		}
	}
	if content != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE drafts SET content = ?, updated_at = ? WHERE id = ?`, *content, ts, id); err != nil {
			return nil, localflowerr.Internal("sqlite: update draft content: %v", err)
		}
	}

	row := tx.QueryRowContext(ctx,
		`SELECT id, conversation_id, type, title, content, status, created_at, updated_at FROM drafts WHERE id = ?`,
		id,
	)
	var d domain.Draft
	var draftType, stat, createdAt, updatedAt string
	if err := row.Scan(&d.ID, &d.ConversationID, &draftType, &d.Title, &d.Content, &stat, &createdAt, &updatedAt); err != nil {
		return nil, localflowerr.Internal("sqlite: reread draft: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, localflowerr.Internal("sqlite: commit: %v", err)
	}
	d.Type = domain.DraftType(draftType)
	d.Status = domain.DraftStatus(stat)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func (s *Store) GetToolPlanByDraft(ctx context.Context, draftID string) (*domain.ToolPlan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, draft_id, json_canonical, content_hash, created_at FROM tool_plans WHERE draft_id = ?`,
		draftID,
	)
	var tp domain.ToolPlan
	var createdAt string
	if err := row.Scan(&tp.ID, &tp.DraftID, &tp.JSONCanonical, &tp.ContentHash, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, localflowerr.Internal("sqlite: get tool plan: %v", err)
	}
	tp.CreatedAt = parseTime(createdAt)
	return &tp, nil
}

// UpsertToolPlan enforces invariants I1 (draft must be DRAFTING) and I2
// (at most one ToolPlan per draft) inside a single transaction.
func (s *Store) UpsertToolPlan(ctx context.Context, draftID, jsonCanonical, contentHash string) (*domain.ToolPlan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: begin tx: %v", err)
	}
	defer tx.Rollback()

	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM drafts WHERE id = ?`, draftID).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("draft not found: %s", draftID)
		}
		return nil, localflowerr.Internal("sqlite: read draft status: %v", err)
	}
	if domain.DraftStatus(status) != domain.DraftDrafting {
		return nil, localflowerr.Conflict("draft is locked")
	}

	var existingID, createdAt string
	err = tx.QueryRowContext(ctx, `SELECT id, created_at FROM tool_plans WHERE draft_id = ?`, draftID).Scan(&existingID, &createdAt)
	switch {
	case err == sql.ErrNoRows:
		existingID = uuid.NewString()
		createdAt = now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tool_plans (id, draft_id, json_canonical, content_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
			existingID, draftID, jsonCanonical, contentHash, createdAt,
		); err != nil {
			return nil, localflowerr.Internal("sqlite: insert tool plan: %v", err)
		}
	case err != nil:
		return nil, localflowerr.Internal("sqlite: read existing tool plan: %v", err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE tool_plans SET json_canonical = ?, content_hash = ? WHERE id = ?`,
			jsonCanonical, contentHash, existingID,
		); err != nil {
			return nil, localflowerr.Internal("sqlite: update tool plan: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, localflowerr.Internal("sqlite: commit: %v", err)
	}

	return &domain.ToolPlan{
		ID: existingID, DraftID: draftID, JSONCanonical: jsonCanonical, ContentHash: contentHash,
		CreatedAt: parseTime(createdAt),
	}, nil
}

// ApproveDraft enforces invariant I4 (approval implies lock) atomically:
// the draft's lock transition and the approval insert share one
// transaction.
func (s *Store) ApproveDraft(ctx context.Context, draftID, draftHash string, toolplanHash *string) (*domain.Approval, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: begin tx: %v", err)
	}
	defer tx.Rollback()

	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM drafts WHERE id = ?`, draftID).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("draft not found: %s", draftID)
		}
		return nil, localflowerr.Internal("sqlite: read draft status: %v", err)
	}
	if domain.DraftStatus(status) != domain.DraftDrafting {
		return nil, localflowerr.Conflict("draft already locked")
	}

	id := uuid.NewString()
	ts := now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO approvals (id, draft_id, draft_hash, toolplan_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, draftID, draftHash, toolplanHash, ts,
	); err != nil {
		return nil, localflowerr.Internal("sqlite: insert approval: %v", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE drafts SET status = ?, updated_at = ? WHERE id = ?`,
		string(domain.DraftApprovedLocked), ts, draftID,
	); err != nil {
		return nil, localflowerr.Internal("sqlite: lock draft: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, localflowerr.Internal("sqlite: commit: %v", err)
	}

	return &domain.Approval{ID: id, DraftID: draftID, DraftHash: draftHash, ToolplanHash: toolplanHash, CreatedAt: parseTime(ts)}, nil
}

func (s *Store) GetApproval(ctx context.Context, id string) (*domain.Approval, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, draft_id, draft_hash, toolplan_hash, created_at FROM approvals WHERE id = ?`,
		id,
	)
	var a domain.Approval
	var createdAt string
	var toolplanHash sql.NullString
	if err := row.Scan(&a.ID, &a.DraftID, &a.DraftHash, &toolplanHash, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("approval not found: %s", id)
		}
		return nil, localflowerr.Internal("sqlite: get approval: %v", err)
	}
	if toolplanHash.Valid {
		a.ToolplanHash = &toolplanHash.String
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (s *Store) ListApprovalsForConversation(ctx context.Context, conversationID string) ([]*domain.Approval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.draft_id, a.draft_hash, a.toolplan_hash, a.created_at
		 FROM approvals a JOIN drafts d ON d.id = a.draft_id
		 WHERE d.conversation_id = ? ORDER BY a.created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: list approvals: %v", err)
	}
	defer rows.Close()

	var out []*domain.Approval
	for rows.Next() {
		var a domain.Approval
		var createdAt string
		var toolplanHash sql.NullString
		if err := rows.Scan(&a.ID, &a.DraftID, &a.DraftHash, &toolplanHash, &createdAt); err != nil {
			return nil, localflowerr.Internal("sqlite: scan approval: %v", err)
		}
		if toolplanHash.Valid {
			a.ToolplanHash = &toolplanHash.String
		}
		a.CreatedAt = parseTime(createdAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *Store) CreateExecution(ctx context.Context, approvalID, toolName, requestJSON string) (*domain.Execution, error) {
	id := uuid.NewString()
	createdAt := now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, approval_id, tool_name, request_json, result_json, status, created_at)
		 VALUES (?, ?, ?, ?, '', ?, ?)`,
		id, approvalID, toolName, requestJSON, string(domain.ExecutionRunning), createdAt,
	)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: create execution: %v", err)
	}
	return &domain.Execution{
		ID: id, ApprovalID: approvalID, ToolName: toolName, RequestJSON: requestJSON,
		Status: domain.ExecutionRunning, CreatedAt: parseTime(createdAt),
	}, nil
}

func (s *Store) FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, resultJSON string) (*domain.Execution, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, result_json = ? WHERE id = ?`,
		string(status), resultJSON, id,
	)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: finish execution: %v", err)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, approval_id, tool_name, request_json, result_json, status, created_at FROM executions WHERE id = ?`,
		id,
	)
	var e domain.Execution
	var st, createdAt string
	if err := row.Scan(&e.ID, &e.ApprovalID, &e.ToolName, &e.RequestJSON, &e.ResultJSON, &st, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, localflowerr.NotFound("execution not found: %s", id)
		}
		return nil, localflowerr.Internal("sqlite: reread execution: %v", err)
	}
	e.Status = domain.ExecutionStatus(st)
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

func (s *Store) ListExecutionsForApproval(ctx context.Context, approvalID string) ([]*domain.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, approval_id, tool_name, request_json, result_json, status, created_at
		 FROM executions WHERE approval_id = ? ORDER BY created_at ASC`,
		approvalID,
	)
	if err != nil {
		return nil, localflowerr.Internal("sqlite: list executions: %v", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		var e domain.Execution
		var status, createdAt string
		if err := rows.Scan(&e.ID, &e.ApprovalID, &e.ToolName, &e.RequestJSON, &e.ResultJSON, &status, &createdAt); err != nil {
			return nil, localflowerr.Internal("sqlite: scan execution: %v", err)
		}
		e.Status = domain.ExecutionStatus(status)
		e.CreatedAt = parseTime(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}
