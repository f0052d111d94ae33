package verifications

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/avdeyev/authcore/internal/apperr"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expires := time.Now().Add(15 * time.Minute)
	rows := sqlmock.NewRows([]string{"id", "created_at"}).AddRow("v1", time.Now())

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+email_verifications\b.*RETURNING\s+id,\s*created_at\s*$`).
		WithArgs("u1", "hash", expires).
		WillReturnRows(rows)

	v, err := repo.Create(context.Background(), "u1", "hash", expires)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ID != "v1" || v.UserID != "u1" || v.OTPHash != "hash" {
		t.Fatalf("unexpected row: %+v", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSupersedeAllUnverified_OnlyTouchesUnverified(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+email_verifications\s+SET\s+superseded\s*=\s*TRUE\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+verified\s*=\s*FALSE\s+AND\s+superseded\s*=\s*FALSE\s*$`
	mock.ExpectExec(q).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.SupersedeAllUnverified(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountSince(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	since := time.Now().Add(-5 * time.Minute)
	mock.ExpectQuery(`(?s)^\s*SELECT\s+COUNT\(\*\)\s+FROM\s+email_verifications\b`).
		WithArgs("u1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountSince(context.Background(), "u1", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("count mismatch: got %d want 2", n)
	}
}

func TestOldestSince_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	since := time.Now().Add(-5 * time.Minute)
	oldest := time.Now().Add(-4 * time.Minute)
	mock.ExpectQuery(`(?s)^\s*SELECT\s+created_at\s+FROM\s+email_verifications\b.*ORDER\s+BY\s+created_at\s+ASC\s+LIMIT\s+1\s*$`).
		WithArgs("u1", since).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(oldest))

	got, err := repo.OldestSince(context.Background(), "u1", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(oldest) {
		t.Fatalf("timestamp mismatch: got %v want %v", got, oldest)
	}
}

func TestOldestSince_Empty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT\s+created_at\s+FROM\s+email_verifications\b`).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.OldestSince(context.Background(), "u1", time.Now())
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found kind, got %v", err)
	}
}

func TestCountSince_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT\s+COUNT\(\*\)\s+FROM\s+email_verifications\b`).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnError(errors.New("db down"))

	_, err := repo.CountSince(context.Background(), "u1", time.Now())
	if err == nil || apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindLatestPending_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expires := time.Now().Add(15 * time.Minute)
	rows := sqlmock.NewRows([]string{"id", "user_id", "otp_hash", "expires_at", "attempts", "verified", "superseded", "created_at"}).
		AddRow("v2", "u1", "hash", expires, 1, false, false, time.Now())

	mock.ExpectQuery(`(?s)^\s*SELECT\s+id,\s*user_id,\s*otp_hash\b.*verified\s*=\s*FALSE\s+AND\s+superseded\s*=\s*FALSE\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+1\s*$`).
		WithArgs("u1").
		WillReturnRows(rows)

	v, err := repo.FindLatestPending(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ID != "v2" || v.Attempts != 1 || v.Verified || v.Superseded {
		t.Fatalf("unexpected row: %+v", v)
	}
}

func TestFindLatestPending_None(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT\s+id,\s*user_id,\s*otp_hash\b`).
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindLatestPending(context.Background(), "u1")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found kind, got %v", err)
	}
}

func TestMarkVerified(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*UPDATE\s+email_verifications\s+SET\s+verified\s*=\s*TRUE\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs("v2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkVerified(context.Background(), "v2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIncrementAttempts(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*UPDATE\s+email_verifications\s+SET\s+attempts\s*=\s*attempts\s*\+\s*1\b.*RETURNING\s+attempts\s*$`).
		WithArgs("v2").
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(3))

	n, err := repo.IncrementAttempts(context.Background(), "v2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("attempts mismatch: got %d want 3", n)
	}
}
