package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/airwatch/aqicast/internal/config"
)

func newCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Fetch the current observation from the pollution feed and store it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			collector, err := a.collector()
			if err != nil {
				return err
			}
			if err := collector.Collect(ctx); err != nil {
				return err
			}
			log.Info().Str("station", cfg.Station).Msg("observation stored")
			return nil
		},
	}
	return cmd
}
