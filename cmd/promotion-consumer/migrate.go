package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dvloznov/promotion-consumer/internal/config"
	"github.com/dvloznov/promotion-consumer/internal/infra/postgres"
	"github.com/dvloznov/promotion-consumer/internal/infra/postgres/migrations"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cfg, log, err := loadConfig(c.Context())
			if err != nil {
				return err
			}

			connString, err := cfg.Database.ConnString()
			if err != nil {
				if errors.Is(err, config.ErrDatabaseNotConfigured) {
					log.Error().Err(err).Msg("Set database.url or database.host and database.dbname")
				}
				return err
			}

			pool, err := postgres.NewConnectionPool(ctx, connString, postgres.PoolOptions{MaxConns: 2})
			if err != nil {
				log.Error().Err(err).Msg("Failed to connect to the database")
				return err
			}
			defer pool.Close()

			if err := migrations.RunMigrationsUp(ctx, pool, log); err != nil {
				log.Error().Err(err).Msg("Migration failed")
				return err
			}
			return nil
		},
	}
}
