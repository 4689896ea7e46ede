package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

func newSyncRepoWithMock(t *testing.T) (*SyncRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &SyncRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestHasSeen(t *testing.T) {
	repo, mock, done := newSyncRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("acc-1", "ext-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	seen, err := repo.HasSeen(context.Background(), "acc-1", "ext-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen {
		t.Fatal("expected seen = true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetCursorNullMeansNeverSynced(t *testing.T) {
	repo, mock, done := newSyncRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT last_sync FROM provider_accounts").
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"last_sync"}).AddRow(nil))

	cursor, err := repo.GetCursor(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cursor != nil {
		t.Fatalf("expected nil cursor, got %v", cursor)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetCursorUnknownAccount(t *testing.T) {
	repo, mock, done := newSyncRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT last_sync FROM provider_accounts").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetCursor(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAdvanceCursorIgnoresStaleWrite(t *testing.T) {
	repo, mock, done := newSyncRepoWithMock(t)
	defer done()

	stale := time.Now().Add(-time.Hour)
	mock.ExpectExec("UPDATE provider_accounts").
		WithArgs("acc-1", stale).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// A stale cursor loses the guard and the watermark stays put; that is
	// not an error.
	if err := repo.AdvanceCursor(context.Background(), "acc-1", stale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
