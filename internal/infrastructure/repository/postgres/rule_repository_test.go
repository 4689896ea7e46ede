package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

func newRuleRepoWithMock(t *testing.T) (*RuleRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &RuleRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestListActiveDecodesMetadata(t *testing.T) {
	repo, mock, done := newRuleRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	columns := []string{"id", "user_id", "kind", "condition", "action", "active", "metadata", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT id, user_id, kind, condition, action").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"r1", "user-1", "subject_contains", "invoice", "webhook_call", true,
			[]byte(`{"url":"https://hooks.example.com/x"}`), now, now,
		))

	rules, err := repo.ListActive(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if rules[0].Kind != domain.TriggerSubjectContains || rules[0].Action != domain.ActionWebhookCall {
		t.Fatalf("enums not decoded: %+v", rules[0])
	}
	if rules[0].Metadata["url"] != "https://hooks.example.com/x" {
		t.Fatalf("metadata not decoded: %v", rules[0].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRuleRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE trigger_rules").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &domain.TriggerRule{
		ID:     "missing",
		UserID: "user-1",
		Kind:   domain.TriggerSubjectContains,
		Action: domain.ActionLogMessage,
	})
	if !domain.IsKind(err, domain.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRuleRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM trigger_rules").
		WithArgs("user-1", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "user-1", "missing")
	if !domain.IsKind(err, domain.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
