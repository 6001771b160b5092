package main

import (
	"context"
	"fmt"

	"studyhub/backend/internal/config"
	"studyhub/backend/internal/db"
	"studyhub/backend/internal/repository"
	"studyhub/backend/internal/service"
	"studyhub/backend/internal/timer"
)

type sessionStore interface {
	timer.Store
	service.SessionHistory
}

type stores struct {
	users    service.UserStore
	rooms    service.RoomStore
	sessions sessionStore
	close    func()
}

// openStores opens the configured database and applies migrations.
func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := db.OpenPostgres(ctx, db.PostgresConfig{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, err
		}
		if err := db.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return &stores{
			users:    repository.NewPostgresUserRepository(pool),
			rooms:    repository.NewPostgresRoomRepository(pool),
			sessions: repository.NewPostgresTimerSessionRepository(pool),
			close:    pool.Close,
		}, nil
	default:
		database, err := db.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return &stores{
			users:    repository.NewUserRepository(database),
			rooms:    repository.NewRoomRepository(database),
			sessions: repository.NewTimerSessionRepository(database),
			close:    func() { _ = database.Close() },
		}, nil
	}
}
