package database

import (
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Postgres SQLSTATE codes the service distinguishes.
const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
)

var (
	// ErrUniqueViolation marks a write rejected by a UNIQUE or PRIMARY KEY constraint.
	ErrUniqueViolation = errors.New("unique constraint violation")
	// ErrForeignKeyViolation marks a write rejected by a FOREIGN KEY constraint.
	ErrForeignKeyViolation = errors.New("foreign key violation")
)

// ConstraintError carries the constraint a write tripped over. It unwraps to
// one of the sentinel errors above.
type ConstraintError struct {
	Kind       error
	Table      string
	Constraint string
	Detail     string
}

func (e *ConstraintError) Error() string {
	if e.Constraint == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + " on " + e.Constraint
}

func (e *ConstraintError) Unwrap() error {
	return e.Kind
}

// TranslateError maps driver errors for constraint violations onto
// ConstraintError. Anything else is returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case uniqueViolation:
		return &ConstraintError{Kind: ErrUniqueViolation, Table: pqErr.Table, Constraint: pqErr.Constraint, Detail: pqErr.Detail}
	case foreignKeyViolation:
		return &ConstraintError{Kind: ErrForeignKeyViolation, Table: pqErr.Table, Constraint: pqErr.Constraint, Detail: pqErr.Detail}
	}
	return err
}

// IsUniqueViolation reports whether err was caused by a duplicate key.
func IsUniqueViolation(err error) bool {
	return errors.Is(TranslateError(err), ErrUniqueViolation)
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
