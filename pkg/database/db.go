package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Queryer is the part of sqlx shared by *sqlx.DB and *sqlx.Tx. Repositories
// run every statement through one so that they join whatever transaction the
// context carries.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

// Scoper runs work inside a transactional scope. A scope opened while another
// is active on the context becomes a savepoint nested in it.
type Scoper interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

type DB interface {
	Queryer
	Scoper
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	PingContext(ctx context.Context) error
	DriverName() string
	Close() error
	SQLDB() *sql.DB
}

type Config struct {
	Driver          string
	Host            string
	Port            string
	UserName        string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.UserName, c.Password, c.Name, c.SSLMode)
}

type DatabaseInstance struct {
	*sqlx.DB
	logger ectologger.Logger
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	return &DatabaseInstance{
		DB:     db,
		logger: logger,
	}
}

// Connect opens a pooled connection and verifies it with a ping.
func Connect(ctx context.Context, cfg Config, logger ectologger.Logger) (DB, error) {
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN())
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("Failed to connect to database %s on %s:%s", cfg.Name, cfg.Host, cfg.Port)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.WithContext(ctx).Infof("Connected to database %s on %s:%s", cfg.Name, cfg.Host, cfg.Port)
	return NewDatabaseInstance(db, logger), nil
}

func (db *DatabaseInstance) SQLDB() *sql.DB {
	return db.DB.DB
}

func (db *DatabaseInstance) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return Atomic(ctx, db.logger, db, fn)
}

// Executor returns the transaction open on ctx, or db when there is none.
func Executor(ctx context.Context, db DB) Queryer {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}
