package database

import (
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateError(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, TranslateError(nil))
	})

	t.Run("UniqueViolation", func(t *testing.T) {
		err := errors.Wrap(&pq.Error{Code: "23505", Table: "records", Constraint: "records_user_event_program_key"}, "update records")

		translated := TranslateError(err)
		assert.ErrorIs(t, translated, ErrUniqueViolation)
		assert.True(t, IsUniqueViolation(err))

		var constraintErr *ConstraintError
		require.ErrorAs(t, translated, &constraintErr)
		assert.Equal(t, "records", constraintErr.Table)
		assert.Equal(t, "unique constraint violation on records_user_event_program_key", constraintErr.Error())
	})

	t.Run("ForeignKeyViolation", func(t *testing.T) {
		translated := TranslateError(&pq.Error{Code: "23503"})
		assert.ErrorIs(t, translated, ErrForeignKeyViolation)
		assert.False(t, IsUniqueViolation(translated))
		assert.Equal(t, "foreign key violation", translated.Error())
	})

	t.Run("OtherDriverError", func(t *testing.T) {
		err := &pq.Error{Code: "40001"}
		assert.Same(t, err, TranslateError(err))
	})

	t.Run("NotADriverError", func(t *testing.T) {
		err := errors.New("connection reset")
		assert.Equal(t, err, TranslateError(err))
		assert.False(t, IsUniqueViolation(err))
	})

	t.Run("WrappedSentinel", func(t *testing.T) {
		assert.True(t, IsUniqueViolation(errors.Wrap(ErrUniqueViolation, "student_profiles")))
	})
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(sql.ErrNoRows))
	assert.True(t, IsNoRows(errors.Wrap(sql.ErrNoRows, "get user")))
	assert.False(t, IsNoRows(errors.New("other")))
}
