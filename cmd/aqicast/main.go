package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "aqicast"
	version = "v1.2.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Pollution index forecasting: train, promote, and serve horizon models",
		Version: version,
		Long: `aqicast trains one forecast model per horizon (24h/48h/72h) on hourly
sensor and weather readings, decides after every run whether each newly
trained model should replace the one serving traffic, and keeps a full
audit trail of versions, deployments, and evaluation history.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/aqicast.yaml", "path to YAML configuration")

	rootCmd.AddCommand(newTrainCmd())
	rootCmd.AddCommand(newCollectCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newHistoryCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}
