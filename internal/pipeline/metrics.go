package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	modelsTrained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqicast_training_models_trained_total",
		Help: "Total number of (horizon, algorithm) models fitted successfully.",
	})
	unitsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqicast_training_units_skipped_total",
		Help: "Total number of (horizon, algorithm) units skipped for insufficient data.",
	})
	fitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqicast_training_fit_failures_total",
		Help: "Total number of model fit or evaluation failures.",
	})
	promotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqicast_training_promotions_total",
		Help: "Total number of models promoted to the active slot.",
	})
	holds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqicast_training_holds_total",
		Help: "Total number of promotion decisions that held the current model.",
	})
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aqicast_training_run_duration_seconds",
		Help:    "Duration of a full train-evaluate-promote run.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
)
