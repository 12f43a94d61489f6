package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dvloznov/promotion-consumer/internal/config"
)

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(c *cobra.Command, _ []string) error {
			_, cfg, _, err := loadConfig(c.Context())
			if err != nil {
				return err
			}
			if err := printConfig(c.OutOrStdout(), cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(c.ErrOrStderr(), "# %v\n", err)
			}
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("printConfig: %w", err)
	}
	return enc.Close()
}
