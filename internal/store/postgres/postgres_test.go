package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
)

// newMockStore wires a Store directly around a go-sqlmock-driven *sql.DB,
// so the query/rebind/transaction logic above is exercised without a live
// Postgres instance.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}, mock
}

func TestCreateConversationExecutesInsert(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(sqlmock.AnyArg(), "hello", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	conv, err := st.CreateConversation(context.Background(), "hello")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.Title != "hello" {
		t.Fatalf("got title %q", conv.Title)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetConversationFound(t *testing.T) {
	st, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "title", "created_at"}).
		AddRow("c1", "hello", now())
	mock.ExpectQuery("SELECT id, title, created_at FROM conversations").
		WithArgs("c1").
		WillReturnRows(rows)

	conv, err := st.GetConversation(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.ID != "c1" {
		t.Fatalf("got id %q", conv.ID)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, title, created_at FROM conversations").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := st.GetConversation(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing conversation")
	}
	e, ok := localflowerr.As(err)
	if !ok || e.Kind != localflowerr.KindNotFound {
		t.Fatalf("expected NotFound-kind error, got %v", err)
	}
}

func TestApproveDraftRunsTransactionAndLocksDraft(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM drafts WHERE id").
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(domain.DraftDrafting)))
	mock.ExpectExec("INSERT INTO approvals").
		WithArgs(sqlmock.AnyArg(), "d1", "draft-hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE drafts SET status").
		WithArgs(string(domain.DraftApprovedLocked), sqlmock.AnyArg(), "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	approval, err := st.ApproveDraft(context.Background(), "d1", "draft-hash", nil)
	if err != nil {
		t.Fatalf("ApproveDraft: %v", err)
	}
	if approval.DraftID != "d1" || approval.DraftHash != "draft-hash" {
		t.Fatalf("unexpected approval: %+v", approval)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApproveDraftRejectsAlreadyLockedDraft(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM drafts WHERE id").
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(domain.DraftApprovedLocked)))
	mock.ExpectRollback()

	_, err := st.ApproveDraft(context.Background(), "d1", "draft-hash", nil)
	if err == nil {
		t.Fatal("expected error approving an already-locked draft")
	}
	e, ok := localflowerr.As(err)
	if !ok || e.Kind != localflowerr.KindConflict {
		t.Fatalf("expected Conflict-kind error, got %v", err)
	}
}
