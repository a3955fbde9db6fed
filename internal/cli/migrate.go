package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"guild-quiz-service/internal/config"
	pgmigrations "guild-quiz-service/internal/infra/postgres/migrations"
	"guild-quiz-service/internal/infra/sqlstore"
	"guild-quiz-service/internal/lib/slogcustom"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slogcustom.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)

	switch cfg.Store.Driver {
	case "sqlite", "mysql":
		dialect, err := sqlstore.DialectFor(cfg.Store.Driver)
		if err != nil {
			return err
		}
		store, err := sqlstore.Connect(ctx, dialect, cfg.Store.DSN)
		if err != nil {
			return err
		}
		logger.Info("schema applied", "driver", cfg.Store.Driver)
		return store.Close()
	}
	return runMigrationsWithConfig(ctx, cfg, logger)
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	url := cfg.PostgresURL()
	if url == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(url)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		logger.Info("postgres schema up to date")
		return nil
	}
	logger.Info("migrations applied", "group", group.String())
	return nil
}
