package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, MapError(nil))
	})

	t.Run("unique violation", func(t *testing.T) {
		err := MapError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})
		var integrity *IntegrityError
		require.ErrorAs(t, err, &integrity)
		assert.True(t, integrity.IsUnique())
		assert.False(t, integrity.IsForeignKey())
		assert.Equal(t, "users_username_key", integrity.Constraint)
	})

	t.Run("foreign key violation", func(t *testing.T) {
		err := MapError(&pgconn.PgError{Code: "23503", ConstraintName: "fk_posts_user_id_users"})
		var integrity *IntegrityError
		require.ErrorAs(t, err, &integrity)
		assert.True(t, integrity.IsForeignKey())
		assert.False(t, integrity.IsUnique())
	})

	t.Run("not null violation", func(t *testing.T) {
		err := MapError(&pgconn.PgError{Code: "23502"})
		var integrity *IntegrityError
		require.ErrorAs(t, err, &integrity)
	})

	t.Run("check violation", func(t *testing.T) {
		err := MapError(&pgconn.PgError{Code: "23514"})
		var integrity *IntegrityError
		require.ErrorAs(t, err, &integrity)
	})

	t.Run("connection class", func(t *testing.T) {
		err := MapError(&pgconn.PgError{Code: "08006"})
		var conn *ConnectionError
		require.ErrorAs(t, err, &conn)
	})

	t.Run("timeout maps to connection error", func(t *testing.T) {
		err := MapError(context.DeadlineExceeded)
		var conn *ConnectionError
		require.ErrorAs(t, err, &conn)
	})

	t.Run("other errors pass through unchanged", func(t *testing.T) {
		cause := errors.New("boom")
		assert.Equal(t, cause, MapError(cause))
	})

	t.Run("other pg errors pass through", func(t *testing.T) {
		cause := &pgconn.PgError{Code: "42601"} // syntax error
		assert.Equal(t, error(cause), MapError(cause))
	})
}

func TestErrorMessages(t *testing.T) {
	integrity := &IntegrityError{Code: "23505", Constraint: "users_username_key", Err: errors.New("dup")}
	assert.Contains(t, integrity.Error(), "users_username_key")
	assert.ErrorIs(t, integrity, integrity.Err)

	conn := &ConnectionError{Err: errors.New("refused")}
	assert.Contains(t, conn.Error(), "refused")

	query := &QueryError{Query: "SELECT 1", Err: errors.New("bad")}
	assert.Contains(t, query.Error(), "bad")
}
