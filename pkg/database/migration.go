package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return true
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(strings.TrimSuffix(format, "\n"), v...)
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

type MigrationConfig struct {
	// MigrationFolderPath overrides the embedded migrations with a folder on disk.
	MigrationFolderPath string
	// Embedded is used when MigrationFolderPath is empty.
	Embedded     fs.FS
	EmbeddedDir  string
	Version      uint
	Force        int
	AutoRollback bool // If enabled, will attempt to rollback the database to the previous version if an error occurs
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

func (ms *MigrationService) resolveMigrationFolder() string {
	migrationFolder := ms.config.MigrationFolderPath
	if _, err := os.Stat(migrationFolder); err == nil {
		return migrationFolder
	}
	workingDirectory, _ := os.Getwd()
	separator := ""
	if workingDirectory != "/" {
		separator = "/"
	}
	return workingDirectory + separator + migrationFolder
}

// Migrate brings the schema to the configured version, or the latest one.
func (ms *MigrationService) Migrate(db DB) error {
	m, release, err := ms.newMigrate(db)
	if err != nil {
		return err
	}
	defer release()

	return ms.runMigration(m)
}

// Reset drops every managed table and re-applies all migrations, leaving an empty schema.
func (ms *MigrationService) Reset(db DB) error {
	m, release, err := ms.newMigrate(db)
	if err != nil {
		return err
	}
	defer release()

	ms.logger.Warn("Resetting database schema")
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		ms.logger.WithError(err).Error("Failed to roll back migrations")
		return errors.Wrap(err, "failed to roll back migrations")
	}

	return ms.runMigration(m)
}

// newMigrate builds a migrate instance over db. release must be called once
// the instance is no longer used; it returns any connection the driver holds
// to the pool without closing db itself.
func (ms *MigrationService) newMigrate(db DB) (*migrate.Migrate, func(), error) {
	driver, release, err := databaseDriver(context.Background(), db)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migration database driver")
		return nil, nil, err
	}

	var m *migrate.Migrate
	if ms.config.MigrationFolderPath != "" {
		migrationFolder := ms.resolveMigrationFolder()
		if _, err := os.Stat(migrationFolder); err != nil {
			release()
			return nil, nil, errors.Wrap(err, fmt.Sprintf("migration folder %s does not exist", migrationFolder))
		}
		m, err = migrate.NewWithDatabaseInstance("file://"+migrationFolder, db.DriverName(), driver)
	} else {
		var src source.Driver
		src, err = iofs.New(ms.config.Embedded, ms.config.EmbeddedDir)
		if err != nil {
			release()
			return nil, nil, errors.Wrap(err, "failed to open embedded migrations")
		}
		m, err = migrate.NewWithInstance("iofs", src, db.DriverName(), driver)
	}
	if err != nil {
		release()
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return nil, nil, err
	}

	m.Log = MigrationLogger{Logger: ms.logger}
	return m, release, nil
}

// databaseDriver never hands the shared pool to a driver whose Close would
// close it. Postgres gets a dedicated connection that release returns.
func databaseDriver(ctx context.Context, db DB) (migratedb.Driver, func(), error) {
	switch db.DriverName() {
	case DriverSQLite:
		driver, err := sqlite.WithInstance(db.SQL(), &sqlite.Config{})
		return driver, func() {}, err
	case DriverPostgres:
		conn, err := db.SQL().Conn(ctx)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to acquire migration connection")
		}
		driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return driver, releaseConn(conn), nil
	default:
		return nil, nil, fmt.Errorf("no migration driver for %q", db.DriverName())
	}
}

func releaseConn(conn *sql.Conn) func() {
	return func() {
		_ = conn.Close()
	}
}

func (ms *MigrationService) runMigration(m *migrate.Migrate) error {
	if ms.config.Force != 0 {
		err := m.Force(ms.config.Force)
		if err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.config.Force)
			return err
		}
	}

	version, _, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
	}

	startTime := time.Now()

	var migrationErr error
	if ms.config.Version != 0 {
		migrationErr = m.Migrate(ms.config.Version)
	} else {
		migrationErr = m.Up()
	}

	ms.logger.Infof("Database migrations completed in %v", time.Since(startTime))

	return ms.handleMigrationError(m, migrationErr, version)
}

func (ms *MigrationService) handleMigrationError(m *migrate.Migrate, err error, previousVersion uint) error {
	if err == nil {
		ms.logger.Info("Successfully applied migrations")
		return nil
	}

	if errors.Is(err, migrate.ErrNoChange) {
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	// usually a rollback to a binary that ships fewer migrations
	if strings.Contains(err.Error(), "no migration found for version") {
		latest, latestErr := ms.latestVersion()
		if latestErr != nil {
			ms.logger.WithError(latestErr).Error("Failed to get latest migration version")
			return latestErr
		}
		ms.logger.Warnf("No migration found for version %d. Latest version is %d", previousVersion, latest)
		if err := m.Force(latest); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", latest)
			return err
		}
		return nil
	}

	ms.logger.WithError(err).Errorf("Migration failed with error: %v", err)

	version, dirty, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
	} else if ms.config.AutoRollback && dirty {
		if previousVersion == 0 && version > 0 {
			previousVersion = version - 1
		}
		ms.logger.Warnf("Database is dirty at version %d. Reverting to version %d", version, previousVersion)
		if forceErr := m.Force(int(previousVersion)); forceErr != nil {
			ms.logger.WithError(forceErr).Errorf("Failed to force database to version %d", previousVersion)
			return forceErr
		}
	}

	// still fail so the caller does not run against a half-migrated schema
	return errors.Wrapf(err, "failed to apply migrations (dirty=%t, version=%d)", dirty, version)
}

func (ms *MigrationService) latestVersion() (int, error) {
	if ms.config.MigrationFolderPath != "" {
		return getLatestVersion(os.DirFS(ms.resolveMigrationFolder()), ".")
	}
	return getLatestVersion(ms.config.Embedded, ms.config.EmbeddedDir)
}

func getLatestVersion(fsys fs.FS, dir string) (int, error) {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, err
	}

	var versions []int
	re := regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := re.FindStringSubmatch(file.Name())
		if len(matches) > 1 {
			version, err := strconv.Atoi(matches[1])
			if err != nil {
				return 0, err
			}
			versions = append(versions, version)
		}
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found")
	}

	sort.Ints(versions)
	return versions[len(versions)-1], nil
}
