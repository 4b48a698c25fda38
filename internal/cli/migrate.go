package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"samaquiz-service/internal/config"
	"samaquiz-service/internal/infra/postgres"
)

// NewMigrateCmd applies (or rolls back) database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			setupLogger(cfg.Log.Level)
			if rollback {
				return rollbackMigrations(cmd.Context(), cfg)
			}
			return runMigrations(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last migration group")
	return cmd
}

func runMigrations(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return errors.New("postgres url not configured")
	}
	db := postgres.Open(cfg.Postgres.URL)
	defer db.Close()
	return postgres.Migrate(ctx, db)
}

func rollbackMigrations(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return errors.New("postgres url not configured")
	}
	db := postgres.Open(cfg.Postgres.URL)
	defer db.Close()
	return postgres.Rollback(ctx, db)
}
