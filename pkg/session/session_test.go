package session_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/stoneacre/cobble/pkg/builder"
	"github.com/stoneacre/cobble/pkg/runtime"
	"github.com/stoneacre/cobble/pkg/session"
	"github.com/stoneacre/cobble/pkg/shop"
)

func newMockSession(t *testing.T) (*session.Session, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	if err := shop.RegisterModels(); err != nil {
		t.Fatalf("failed to register models: %v", err)
	}
	return session.Open(runtime.NewDB(mock)), mock
}

func expectationsMet(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCommit_InsertAssignsIdentity(t *testing.T) {
	s, mock := newMockSession(t)
	defer s.Close()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (username) VALUES ($1) RETURNING id")).
		WithArgs("adi").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	user := &shop.User{Username: "adi"}
	s.Add(user)
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if user.ID != 1 {
		t.Errorf("expected assigned id 1, got %d", user.ID)
	}

	// Nothing pending, nothing dirty: a second commit touches nothing.
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("no-op Commit failed: %v", err)
	}
	expectationsMet(t, mock)
}

func TestCommit_InsertsInRegistrationOrder(t *testing.T) {
	s, mock := newMockSession(t)
	defer s.Close()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (username) VALUES ($1) RETURNING id")).
		WithArgs("adi").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO posts (title, user_id) VALUES ($1, $2) RETURNING id")).
		WithArgs("hello", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectCommit()

	user := &shop.User{Username: "adi"}
	post := &shop.Post{Title: "hello", User: user}
	s.Add(user, post)
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if post.UserID != 1 {
		t.Errorf("expected post.UserID resolved to 1, got %d", post.UserID)
	}
	if post.ID != 5 {
		t.Errorf("expected post id 5, got %d", post.ID)
	}
	expectationsMet(t, mock)
}

func TestCommit_FailureRollsBackAndKeepsPending(t *testing.T) {
	s, mock := newMockSession(t)
	defer s.Close()
	ctx := context.Background()

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "profiles_user_id_key"}
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO profiles (first_name, last_name, bio, user_id) VALUES ($1, $2, $3, $4) RETURNING id")).
		WithArgs((*string)(nil), (*string)(nil), (*string)(nil), int64(1)).
		WillReturnError(pgErr)
	mock.ExpectRollback()

	profile := &shop.Profile{UserID: 1}
	s.Add(profile)

	err := s.Commit(ctx)
	if err == nil {
		t.Fatal("expected commit failure")
	}
	var integrity *runtime.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %T: %v", err, err)
	}
	if !integrity.IsUnique() {
		t.Errorf("expected unique violation, got code %s", integrity.Code)
	}
	if profile.ID != 0 {
		t.Errorf("expected identity withdrawn, got id %d", profile.ID)
	}

	// The pending set survives a failed flush; a retry inserts again.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO profiles (first_name, last_name, bio, user_id) VALUES ($1, $2, $3, $4) RETURNING id")).
		WithArgs((*string)(nil), (*string)(nil), (*string)(nil), int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectCommit()

	if err := s.Commit(ctx); err != nil {
		t.Fatalf("retry Commit failed: %v", err)
	}
	if profile.ID != 3 {
		t.Errorf("expected id 3 after retry, got %d", profile.ID)
	}
	expectationsMet(t, mock)
}

func TestCommit_FlushesDirtyUpdates(t *testing.T) {
	s, mock := newMockSession(t)
	defer s.Close()
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT users.id, users.username FROM users WHERE username = $1 LIMIT 1")).
		WithArgs("adi").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username"}).AddRow(int64(1), "adi"))

	user, err := session.Select[shop.User](s).
		Where(builder.Eq("username", "adi")).
		One(ctx)
	if err != nil {
		t.Fatalf("One failed: %v", err)
	}
	if user == nil {
		t.Fatal("expected a user")
	}

	user.Username = "adi2"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET username = $1 WHERE id = $2")).
		WithArgs("adi2", int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	if err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Snapshot was refreshed: committing again is a no-op.
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("no-op Commit failed: %v", err)
	}
	expectationsMet(t, mock)
}

func TestRollback_RestoresSnapshots(t *testing.T) {
	s, mock := newMockSession(t)
	defer s.Close()
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT users.id, users.username FROM users WHERE username = $1 LIMIT 1")).
		WithArgs("adi").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username"}).AddRow(int64(1), "adi"))

	user, err := session.Select[shop.User](s).
		Where(builder.Eq("username", "adi")).
		One(ctx)
	if err != nil {
		t.Fatalf("One failed: %v", err)
	}

	user.Username = "mangled"
	pending := &shop.User{Username: "extra"}
	s.Add(pending)

	s.Rollback()

	if user.Username != "adi" {
		t.Errorf("expected username restored to 'adi', got %q", user.Username)
	}

	// The discarded insert never reaches the database.
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit after rollback failed: %v", err)
	}
	expectationsMet(t, mock)
}

func TestIdentityMap_SameRowSamePointer(t *testing.T) {
	s, mock := newMockSession(t)
	defer s.Close()
	ctx := context.Background()

	row := func() *pgxmock.Rows {
		return pgxmock.NewRows([]string{"id", "username"}).AddRow(int64(1), "adi")
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT users.id, users.username FROM users WHERE username = $1 LIMIT 1")).
		WithArgs("adi").WillReturnRows(row())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT users.id, users.username FROM users WHERE username = $1 LIMIT 1")).
		WithArgs("adi").WillReturnRows(row())

	first, err := session.Select[shop.User](s).Where(builder.Eq("username", "adi")).One(ctx)
	if err != nil {
		t.Fatalf("first One failed: %v", err)
	}

	// Mutate before the row is materialized a second time.
	first.Username = "renamed"

	second, err := session.Select[shop.User](s).Where(builder.Eq("username", "adi")).One(ctx)
	if err != nil {
		t.Fatalf("second One failed: %v", err)
	}

	if first != second {
		t.Fatal("expected both loads to yield the same instance")
	}
	if second.Username != "renamed" {
		t.Errorf("re-scan clobbered in-memory mutation: %q", second.Username)
	}
	expectationsMet(t, mock)
}

func TestOne_NoRowIsNilNotError(t *testing.T) {
	s, mock := newMockSession(t)
	defer s.Close()
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT users.id, users.username FROM users WHERE username = $1 LIMIT 1")).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username"}))

	user, err := session.Select[shop.User](s).Where(builder.Eq("username", "ghost")).One(ctx)
	if err != nil {
		t.Fatalf("One failed: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil for absent row, got %v", user)
	}
	expectationsMet(t, mock)
}

func TestClose_IsIdempotentAndFinal(t *testing.T) {
	s, mock := newMockSession(t)
	ctx := context.Background()

	s.Add(&shop.User{Username: "late"})
	s.Close()
	s.Close()

	if err := s.Commit(ctx); !errors.Is(err, runtime.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := session.Select[shop.User](s).All(ctx); err == nil {
		t.Error("expected error querying a closed session")
	}
	expectationsMet(t, mock)
}
