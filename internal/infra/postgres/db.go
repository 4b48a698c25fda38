package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"samaquiz-service/internal/infra/postgres/migrations"
)

// Open returns a bun handle for dsn.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Migrate applies all pending schema migrations.
func Migrate(ctx context.Context, db *bun.DB) error {
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if group.IsZero() {
		slog.Info("database schema up to date")
		return nil
	}
	slog.Info("migrations applied", "group", group.ID, "count", len(group.Migrations))
	return nil
}

// Rollback reverts the last applied migration group.
func Rollback(ctx context.Context, db *bun.DB) error {
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	group, err := migrator.Rollback(ctx)
	if err != nil {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	if group.IsZero() {
		slog.Info("no migrations to roll back")
		return nil
	}
	slog.Info("migrations rolled back", "group", group.ID, "count", len(group.Migrations))
	return nil
}
