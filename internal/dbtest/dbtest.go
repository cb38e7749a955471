// Package dbtest opens migrated throwaway databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/require"

	"github.com/WilliamDuke02/databaseProject/db"
	"github.com/WilliamDuke02/databaseProject/pkg/database"
	"github.com/WilliamDuke02/databaseProject/pkg/logging"
)

// Logger discards every message.
func Logger() ectologger.Logger {
	return logging.Nop()
}

// Migrations returns a migration service over the embedded schema.
func Migrations(logger ectologger.Logger) *database.MigrationService {
	return database.NewMigrationService(logger, &database.MigrationConfig{
		Embedded:    db.Migrations,
		EmbeddedDir: db.MigrationsDir,
	})
}

// NewSQLite opens a file-backed sqlite database under t.TempDir with the
// schema applied. It is closed when the test ends.
func NewSQLite(t *testing.T) database.DB {
	t.Helper()

	logger := Logger()
	conn, err := database.Open(context.Background(), database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "vinledger.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, Migrations(logger).Migrate(conn))
	return conn
}
