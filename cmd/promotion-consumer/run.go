package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/promotion-consumer/internal/config"
	"github.com/dvloznov/promotion-consumer/internal/domain"
	"github.com/dvloznov/promotion-consumer/internal/fetch"
	"github.com/dvloznov/promotion-consumer/internal/gcsuploader"
	bqinfra "github.com/dvloznov/promotion-consumer/internal/infra/bigquery"
	"github.com/dvloznov/promotion-consumer/internal/infra/postgres"
	"github.com/dvloznov/promotion-consumer/internal/infra/postgres/migrations"
	"github.com/dvloznov/promotion-consumer/internal/jobs/inmemory"
	"github.com/dvloznov/promotion-consumer/internal/logger"
	"github.com/dvloznov/promotion-consumer/internal/metrics"
	"github.com/dvloznov/promotion-consumer/internal/persist"
	"github.com/dvloznov/promotion-consumer/internal/pipeline"
)

func runCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one promotion fetch job",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cfg, log, err := loadConfig(c.Context())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				log.Error().Err(err).Msg("Invalid configuration")
				return err
			}
			if err := runJob(ctx, cfg, migrate); err != nil {
				log.Error().Err(err).Msg("Promotion fetch job failed")
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending schema migrations before the run")
	return cmd
}

func runJob(ctx context.Context, cfg *config.Config, migrate bool) error {
	log := logger.FromContext(ctx)
	reg := metrics.NewRegistry()

	// 1. Connect to the warehouse.
	table := bqinfra.TableRef{
		ProjectID: cfg.GCP.TableProject(),
		DatasetID: cfg.GCP.Dataset,
		TableID:   cfg.GCP.TableName,
	}
	repo, err := bqinfra.NewBigQueryPromotionRepository(ctx, cfg.GCP.ProjectID, table, cfg.GCP.Location, cfg.GCP.CredentialsFile)
	if err != nil {
		reg.IncError(metrics.CodeGcpQueryJobCreate)
		return fmt.Errorf("runJob: %w", err)
	}
	defer repo.Close()

	// 2. Connect to the relational store.
	connString, err := cfg.Database.ConnString()
	if err != nil {
		return fmt.Errorf("runJob: %w", err)
	}
	pool, err := postgres.NewConnectionPool(ctx, connString, postgres.PoolOptions{
		MaxConns:         cfg.Database.MaxConns,
		StatementTimeout: cfg.Database.StatementTimeout,
	})
	if err != nil {
		reg.IncError(metrics.CodeDBConnection)
		return fmt.Errorf("runJob: %w", err)
	}
	defer pool.Close()

	if migrate {
		if err := migrations.RunMigrationsUp(ctx, pool, log); err != nil {
			reg.IncError(metrics.CodeDBConnection)
			return fmt.Errorf("runJob: %w", err)
		}
	}

	// 3. Run.
	fetcher := fetch.NewClient(repo, fetchSettings(cfg.GCP), reg)
	service := persist.NewService(postgres.NewStore(pool), reg)
	job := pipeline.NewJob(fetcher, service, poolConfig(cfg.Async), inmemory.NewStore(), reg)

	summary, runErr := job.Run(ctx)

	// 4. Publish the outcome even when the run failed. Cancellation of the
	// run must not prevent it.
	outCtx := context.WithoutCancel(ctx)
	if summary != nil && cfg.Report.Bucket != "" {
		if err := uploadReport(outCtx, cfg, summary); err != nil {
			log.Warn().Err(err).Msg("Failed to upload run report")
		}
	}
	if err := reg.Push(outCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
		log.Warn().Err(err).Msg("Failed to push metrics")
	}

	if runErr != nil {
		return fmt.Errorf("runJob: %w", runErr)
	}
	return nil
}

func uploadReport(ctx context.Context, cfg *config.Config, summary *pipeline.Summary) error {
	storage, err := gcsuploader.NewGCSStorageService(ctx, cfg.GCP.CredentialsFile)
	if err != nil {
		return err
	}
	defer storage.Close()

	_, err = gcsuploader.NewReportUploader(storage, cfg.Report.Bucket, cfg.Report.Prefix).Upload(ctx, summary.RunID, summary)
	return err
}

func fetchSettings(g config.GCPConfig) fetch.Settings {
	return fetch.Settings{
		PageSize:          g.PageSize,
		StartDateOverride: g.StartDateOverride,
		EndDateOverride:   g.EndDateOverride,
		Origins:           domain.PromotionOrigins,
	}
}

func poolConfig(a config.AsyncConfig) inmemory.PoolConfig {
	return inmemory.PoolConfig{
		CoreSize:         a.CorePoolSize,
		MaxSize:          a.MaxPoolSize,
		QueueCapacity:    a.QueueCapacity,
		KeepAlive:        a.KeepAlive,
		AwaitTermination: a.AwaitTermination,
	}
}
