package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
)

// CollectFunc fetches and stores one observation.
type CollectFunc func(ctx context.Context) error

// TrainFunc executes one full train-evaluate-promote run.
type TrainFunc func(ctx context.Context) error

// Scheduler drives the periodic collect and train jobs. A failed run changes
// nothing and is simply retried at the next cycle.
type Scheduler struct {
	scheduler *gocron.Scheduler
	collect   CollectFunc
	train     TrainFunc

	collectEvery time.Duration
	trainEvery   time.Duration
}

// New creates a scheduler; either job func may be nil to disable it.
func New(collect CollectFunc, collectEvery time.Duration, train TrainFunc, trainEvery time.Duration) *Scheduler {
	return &Scheduler{
		scheduler:    gocron.NewScheduler(time.UTC),
		collect:      collect,
		train:        train,
		collectEvery: collectEvery,
		trainEvery:   trainEvery,
	}
}

// Start registers the jobs and begins running them asynchronously.
func (s *Scheduler) Start() error {
	if s.collect != nil {
		minutes := int(s.collectEvery.Minutes())
		if minutes <= 0 {
			minutes = 60
		}
		if _, err := s.scheduler.Every(minutes).Minutes().Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := s.collect(ctx); err != nil {
				log.Error().Err(err).Msg("scheduled collection failed")
			}
		}); err != nil {
			return err
		}
	}

	if s.train != nil {
		hours := int(s.trainEvery.Hours())
		if hours <= 0 {
			hours = 24
		}
		if _, err := s.scheduler.Every(hours).Hours().Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if err := s.train(ctx); err != nil {
				log.Error().Err(err).Msg("scheduled training run failed, will retry next cycle")
			}
		}); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	log.Info().
		Dur("collect_every", s.collectEvery).
		Dur("train_every", s.trainEvery).
		Msg("scheduler started")
	return nil
}

// Stop halts the scheduler and drops pending jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
