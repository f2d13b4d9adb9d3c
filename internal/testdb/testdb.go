// Package testdb starts throwaway Postgres and Redis containers for
// integration tests.
package testdb

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/database"
)

const (
	dbUser     = "user"
	dbPassword = "password"
	dbName     = "clover"
)

func Logger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// MigrationsPath is the absolute path of db/pg.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "db", "pg")
}

// Postgres starts postgres:15-alpine, applies the migrations and returns a
// connection. The container is terminated when the test ends.
func Postgres(t *testing.T) database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     dbUser,
				"POSTGRES_PASSWORD": dbPassword,
				"POSTGRES_DB":       dbName,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start postgres")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	logger := Logger()
	db, err := database.Connect(ctx, database.Config{
		Driver:   "postgres",
		Host:     host,
		Port:     port.Port(),
		UserName: dbUser,
		Password: dbPassword,
		Name:     dbName,
		SSLMode:  "disable",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: MigrationsPath()})
	require.NoError(t, migrations.MigratePostgres(db, dbName))

	return db
}

// Redis starts redis:7-alpine and returns its address.
func Redis(t *testing.T) (host string, port string) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err = container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return host, mapped.Port()
}

// Exec runs a seed statement.
func Exec(t *testing.T, db database.DB, query string, args ...any) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), query, args...)
	require.NoError(t, err, fmt.Sprintf("seed: %s", query))
}
