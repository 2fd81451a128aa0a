package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecmem"
)

func loadConfig(cmd *cobra.Command) (vecmem.Config, error) {
	prefix, err := cmd.Flags().GetString("env-prefix")
	if err != nil {
		return vecmem.Config{}, err
	}
	return vecmem.LoadConfig(prefix)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the configuration resolved from the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN != "" {
				cfg.Postgres.DSN = "<redacted>"
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}
