// Package repositories holds the Postgres-backed stores. Every statement runs
// through database.Executor so it joins the transaction carried by ctx.
package repositories

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
)

// NotFound returns a 404 HTTP error with a descriptive message
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Repository provides the shared database handle and logger
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new base repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB returns the database instance
func (r *Repository) DB() database.DB {
	return r.db
}

// Exec returns the transaction open on ctx, or the database.
func (r *Repository) Exec(ctx context.Context) database.Queryer {
	return database.Executor(ctx, r.db)
}

// Atomic runs fn in a transaction, or a savepoint when one is already open.
func (r *Repository) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.Atomic(ctx, fn)
}
