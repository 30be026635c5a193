package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/airwatch/aqicast/internal/config"
)

func newTrainCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run one train-evaluate-promote batch over the stored feature window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.trainOnce(ctx); err != nil {
				return err
			}
			log.Info().Msg("training run complete")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "hard deadline for the whole run")
	return cmd
}
