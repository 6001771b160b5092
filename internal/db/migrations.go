package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

const (
	sqliteDialect   = "sqlite"
	postgresDialect = "postgres"
)

// RunMigrations brings a SQLite database up to the latest schema. The caller
// keeps ownership of database.
func RunMigrations(database *sql.DB) error {
	driver, err := migratesqlite.WithInstance(database, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migration driver: %w", err)
	}
	m, err := newMigrator(sqliteDialect, driver)
	if err != nil {
		return err
	}
	return up(m, sqliteDialect)
}

// RunPostgresMigrations brings the pool's database up to the latest schema.
func RunPostgresMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	// Closing the migrator closes sqlDB, which only releases connections
	// back to the pool.
	sqlDB := stdlib.OpenDBFromPool(pool)
	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("postgres migration driver: %w", err)
	}
	m, err := newMigrator(postgresDialect, driver)
	if err != nil {
		_ = driver.Close()
		return err
	}
	defer m.Close()
	return up(m, postgresDialect)
}

func newMigrator(dialect string, driver database.Driver) (*migrate.Migrate, error) {
	source, err := iofs.New(migrations, "migrations/"+dialect)
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", dialect, err)
	}
	m, err := migrate.NewWithInstance("iofs", source, dialect, driver)
	if err != nil {
		return nil, fmt.Errorf("init %s migrations: %w", dialect, err)
	}
	return m, nil
}

func up(m *migrate.Migrate, dialect string) error {
	err := m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply %s migrations: %w", dialect, err)
	}
	version, _, _ := m.Version()
	log.Info().Str("dialect", dialect).Uint("version", version).Msg("migrations applied")
	return nil
}
