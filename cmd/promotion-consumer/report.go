package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/promotion-consumer/internal/gcsuploader"
	"github.com/dvloznov/promotion-consumer/internal/pipeline"
)

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report gs://bucket/prefix/<run-id>.json",
		Short: "Print an archived run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cfg, log, err := loadConfig(c.Context())
			if err != nil {
				return err
			}

			storage, err := gcsuploader.NewGCSStorageService(ctx, cfg.GCP.CredentialsFile)
			if err != nil {
				log.Error().Err(err).Msg("Failed to create storage client")
				return err
			}
			defer storage.Close()

			var summary pipeline.Summary
			if err := gcsuploader.Download(ctx, storage, args[0], &summary); err != nil {
				log.Error().Err(err).Str("uri", args[0]).Msg("Failed to read run report")
				return err
			}

			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return fmt.Errorf("report: %w", err)
			}
			fmt.Fprintln(c.OutOrStdout(), string(out))
			return nil
		},
	}
}
