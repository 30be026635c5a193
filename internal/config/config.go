package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/promote"
)

// Config is the full application configuration, loaded from a YAML file with
// environment overrides for secrets and deployment-specific values.
type Config struct {
	Station string `yaml:"station"`
	DataDir string `yaml:"data_dir"`

	HTTP      HTTPConfig      `yaml:"http"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Feed      FeedConfig      `yaml:"feed"`
	Training  TrainingConfig  `yaml:"training"`
	Promotion PromotionConfig `yaml:"promotion"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// HTTPConfig configures the read-side API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// PostgresConfig configures the feature table and the evaluation ledger.
// An empty DSN runs the ledger in memory, which loses promotion history
// across restarts; fine for development, not for production.
type PostgresConfig struct {
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig configures the optional online store.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// FeedConfig configures the upstream pollution feed.
type FeedConfig struct {
	BaseURL string  `yaml:"base_url"`
	Token   string  `yaml:"token"`
	Retries int     `yaml:"retries"`
	RateRPS float64 `yaml:"rate_rps"`
}

// TrainingConfig enumerates horizons, split behavior, data thresholds, and
// the algorithm roster for each run.
type TrainingConfig struct {
	Horizons     []int    `yaml:"horizons"`
	SplitRatio   float64  `yaml:"split_ratio"`
	MinTrainRows int      `yaml:"min_train_rows"`
	MinTestRows  int      `yaml:"min_test_rows"`
	Algorithms   []string `yaml:"algorithms"`
	Seed         int64    `yaml:"seed"`
	WindowDays   int      `yaml:"window_days"`
}

// PromotionConfig holds the single history-error policy switch.
type PromotionConfig struct {
	OnHistoryError string `yaml:"on_history_error"` // promote | hold
}

// ScheduleConfig configures the periodic jobs.
type ScheduleConfig struct {
	CollectEveryMinutes int `yaml:"collect_every_minutes"`
	TrainEveryHours     int `yaml:"train_every_hours"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Station: "islamabad",
		DataDir: "data",
		HTTP:    HTTPConfig{Addr: ":8080"},
		Postgres: PostgresConfig{
			Timeout: 10 * time.Second,
		},
		Feed: FeedConfig{
			BaseURL: "https://api.waqi.info",
			Retries: 3,
			RateRPS: 1,
		},
		Training: TrainingConfig{
			Horizons:     []int{24, 48, 72},
			SplitRatio:   0.7,
			MinTrainRows: 5,
			MinTestRows:  2,
			Algorithms:   []string{"linear_regression", "random_forest", "gradient_boost"},
			Seed:         42,
			WindowDays:   30,
		},
		Promotion: PromotionConfig{OnHistoryError: string(promote.PolicyPromote)},
		Schedule: ScheduleConfig{
			CollectEveryMinutes: 60,
			TrainEveryHours:     24,
		},
	}
}

// Load reads configuration from the YAML file at path (optional), overlays
// environment variables, and validates the result. A missing file falls back
// to defaults; an invalid configuration is a startup-time fatal error for
// the caller.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Info().Str("path", path).Msg("config file not found, using defaults")
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Secrets and deployment addresses come from the environment.
	cfg.Feed.Token = getenvDefault("AQICN_TOKEN", cfg.Feed.Token)
	cfg.Postgres.DSN = getenvDefault("DATABASE_URL", cfg.Postgres.DSN)
	cfg.Redis.URL = getenvDefault("REDIS_URL", cfg.Redis.URL)
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Station = getenvDefault("AQI_STATION", cfg.Station)
	cfg.DataDir = getenvDefault("AQI_DATA_DIR", cfg.DataDir)
	cfg.Training.Seed = int64(getenvInt("AQI_SEED", int(cfg.Training.Seed)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the invariants a run cannot start without.
func (c *Config) Validate() error {
	if len(c.Training.Horizons) == 0 {
		return fmt.Errorf("config: at least one forecast horizon is required")
	}
	for _, h := range c.Training.Horizons {
		if h <= 0 {
			return fmt.Errorf("config: horizon must be a positive hour offset, got %d", h)
		}
	}
	if c.Training.SplitRatio <= 0 || c.Training.SplitRatio >= 1 {
		return fmt.Errorf("config: split_ratio must be in (0,1), got %v", c.Training.SplitRatio)
	}
	if len(c.Training.Algorithms) == 0 {
		return fmt.Errorf("config: no algorithms registered")
	}
	if c.Training.MinTrainRows < 1 {
		return fmt.Errorf("config: min_train_rows must be positive")
	}
	if c.Training.MinTestRows < 2 {
		return fmt.Errorf("config: min_test_rows must be at least 2")
	}
	if c.Training.WindowDays < 1 {
		return fmt.Errorf("config: window_days must be positive")
	}
	switch promote.HistoryErrorPolicy(c.Promotion.OnHistoryError) {
	case promote.PolicyPromote, promote.PolicyHold:
	default:
		return fmt.Errorf("config: promotion.on_history_error must be %q or %q",
			promote.PolicyPromote, promote.PolicyHold)
	}
	return nil
}

// Horizons returns the configured horizons as dataset values.
func (c *Config) Horizons() []dataset.Horizon {
	out := make([]dataset.Horizon, len(c.Training.Horizons))
	for i, h := range c.Training.Horizons {
		out[i] = dataset.Horizon(h)
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
