package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/airwatch/aqicast/internal/api"
	"github.com/airwatch/aqicast/internal/config"
	"github.com/airwatch/aqicast/internal/scheduler"
)

// schedule runs the whole system in one process: periodic collection,
// periodic retraining, and the API server, until interrupted.
func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run periodic collection and retraining alongside the API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var collect scheduler.CollectFunc
			if collector, err := a.collector(); err != nil {
				log.Warn().Err(err).Msg("collection job disabled")
			} else {
				collect = collector.Collect
			}

			sched := scheduler.New(
				collect, time.Duration(cfg.Schedule.CollectEveryMinutes)*time.Minute,
				a.trainOnce, time.Duration(cfg.Schedule.TrainEveryHours)*time.Hour,
			)
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()

			srv := api.NewServer(cfg.Station, cfg.Horizons(), a.ledger, a.store, a.deployments, a.online)
			return srv.ListenAndServe(ctx, cfg.HTTP.Addr)
		},
	}
	return cmd
}
