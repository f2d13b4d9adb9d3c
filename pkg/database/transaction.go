package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

var savepointSeq uint64

type Tx interface {
	Queryer
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction is a struct that wraps the sqlx.Tx struct and provides additional functionality
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
	depth    int
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	return &Transaction{
		Tx:     tx,
		logger: logger,
	}
}

// TxFromContext returns the open transaction carried by ctx.
func TxFromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(txKey).(*Transaction)
	if !ok || tx == nil || !tx.IsOpen() {
		return nil, false
	}
	return tx, true
}

// Atomic runs fn inside a transaction. When ctx already carries an open
// transaction fn runs inside a SAVEPOINT instead, and a failure rolls back to
// that savepoint while leaving the outer transaction usable. fn must use the
// context it is given.
func Atomic(ctx context.Context, logger ectologger.Logger, db DB, fn func(ctx context.Context) error) error {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.savepoint(ctx, fn)
	}

	sqlTx, err := db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return fmt.Errorf("error while beginning transaction")
	}

	tx := NewTx(sqlTx, logger)
	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.WithContext(ctx).WithError(rbErr).Error("rollback after failed transaction also failed")
		}
		return err
	}

	return tx.Commit(ctx)
}

func (t *Transaction) savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	name := fmt.Sprintf("sp_%d", atomic.AddUint64(&savepointSeq, 1))

	if _, err := t.Tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while creating savepoint %s", name)
		return errors.Wrapf(err, "create savepoint %s", name)
	}
	t.depth++
	defer func() { t.depth-- }()

	if err := fn(ctx); err != nil {
		if _, rbErr := t.Tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			t.logger.WithContext(ctx).WithError(rbErr).Errorf("error while rolling back to savepoint %s", name)
			return errors.Wrapf(rbErr, "rollback to savepoint %s", name)
		}
		return err
	}

	if _, err := t.Tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while releasing savepoint %s", name)
		return errors.Wrapf(err, "release savepoint %s", name)
	}
	return nil
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

// Depth is the number of savepoints currently open on the transaction.
func (t *Transaction) Depth() int {
	return t.depth
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction")
	}

	t.isClosed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction")
	}

	t.isClosed = true
	return nil
}

var _ Tx = (*Transaction)(nil)
