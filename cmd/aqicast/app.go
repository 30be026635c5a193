package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/airwatch/aqicast/internal/config"
	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/features"
	"github.com/airwatch/aqicast/internal/ledger"
	ledgerpg "github.com/airwatch/aqicast/internal/ledger/postgres"
	"github.com/airwatch/aqicast/internal/model"
	"github.com/airwatch/aqicast/internal/pipeline"
	"github.com/airwatch/aqicast/internal/promote"
	"github.com/airwatch/aqicast/internal/registry"
)

// app wires the shared components every subcommand needs from configuration.
type app struct {
	cfg *config.Config

	db    *sqlx.DB
	redis *redis.Client

	ledger      ledger.Ledger
	store       *registry.FileStore
	deployments *registry.DeploymentMetadata
	online      *features.OnlineStore
	source      *features.PostgresSource
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	store, err := registry.NewFileStore(filepath.Join(cfg.DataDir, "models"))
	if err != nil {
		return nil, err
	}
	a.store = store

	deployments, err := registry.OpenDeploymentMetadata(filepath.Join(cfg.DataDir, "deployment_metadata.json"))
	if err != nil {
		return nil, err
	}
	a.deployments = deployments

	if cfg.Postgres.DSN != "" {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := ledgerpg.InitSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		if err := features.InitSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		a.ledger = ledgerpg.NewLedger(db, cfg.Postgres.Timeout)
		a.source = features.NewPostgresSource(db, cfg.Station, cfg.Postgres.Timeout)
	} else {
		log.Warn().Msg("no database configured, evaluation ledger runs in memory")
		a.ledger = ledger.NewMemoryLedger()
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		a.redis = client
		a.online = features.NewOnlineStore(client)
	}

	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// runner assembles the train-evaluate-promote pipeline.
func (a *app) runner() (*pipeline.Runner, error) {
	splitter, err := dataset.NewSplitter(a.cfg.Training.SplitRatio)
	if err != nil {
		return nil, err
	}

	reg := model.DefaultRegistry(a.cfg.Training.Seed)
	enabled := model.NewRegistry()
	for _, name := range a.cfg.Training.Algorithms {
		ctor, err := constructorFor(reg, name)
		if err != nil {
			return nil, err
		}
		enabled.Register(name, ctor)
	}

	var publisher promote.EventPublisher
	if a.online != nil {
		publisher = a.online
	}
	gate := promote.NewGate(a.ledger, a.store, a.deployments,
		promote.HistoryErrorPolicy(a.cfg.Promotion.OnHistoryError), publisher)

	return pipeline.NewRunner(
		splitter,
		pipeline.NewTrainer(enabled, a.cfg.Training.MinTrainRows),
		pipeline.NewEvaluator(a.cfg.Training.MinTestRows),
		a.store,
		a.ledger,
		gate,
		a.cfg.Horizons(),
	), nil
}

// constructorFor validates the name against the default roster once, at
// wiring time, so a typo in config is a startup error rather than a skipped
// unit on every run.
func constructorFor(reg *model.Registry, name string) (model.Constructor, error) {
	if _, err := reg.New(name); err != nil {
		return nil, err
	}
	return func() model.Regressor {
		r, _ := reg.New(name)
		return r
	}, nil
}

// trainOnce loads the configured training window and executes one batch run.
func (a *app) trainOnce(ctx context.Context) error {
	if a.source == nil {
		return fmt.Errorf("training requires a database (set DATABASE_URL)")
	}

	runner, err := a.runner()
	if err != nil {
		return err
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -a.cfg.Training.WindowDays)
	table, err := a.source.GetTrainingWindow(ctx, start, end)
	if err != nil {
		return err
	}

	_, err = runner.Run(ctx, table)
	return err
}

// collector builds the feed collector; requires a database for durable rows.
func (a *app) collector() (*features.Collector, error) {
	if a.source == nil {
		return nil, fmt.Errorf("collection requires a database (set DATABASE_URL)")
	}
	if a.cfg.Feed.Token == "" {
		return nil, fmt.Errorf("collection requires a feed token (set AQICN_TOKEN)")
	}
	return features.NewCollector(features.CollectorConfig{
		BaseURL: a.cfg.Feed.BaseURL,
		Token:   a.cfg.Feed.Token,
		Station: a.cfg.Station,
		Retries: a.cfg.Feed.Retries,
		RateRPS: a.cfg.Feed.RateRPS,
	}, a.source, a.online), nil
}
