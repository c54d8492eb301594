package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты цикла обновления
const (
	cycleResultSuccess    = "success"
	cycleResultFailed     = "failed"
	cycleResultSuperseded = "superseded"
	cycleResultCanceled   = "canceled"
	cycleResultClosed     = "closed"
)

var (
	fetchCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyteller_fetch_cycles_total",
			Help: "Total number of planet fetch cycles by result.",
		},
		[]string{"result"},
	)
	fetchCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storyteller_fetch_cycle_duration_seconds",
			Help:    "Duration of planet fetch cycles.",
			Buckets: prometheus.DefBuckets,
		},
	)
	diaryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyteller_diary_failures_total",
			Help: "Planets published without a diary because the story fetch failed.",
		},
		[]string{"reason"}, // not_found | error
	)
	publishedPlanets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyteller_published_planets",
			Help: "Number of planets in the last published snapshot.",
		},
	)
	snapshotSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyteller_snapshot_subscribers",
			Help: "Number of active snapshot subscribers.",
		},
	)
	promptRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyteller_prompt_requests_total",
			Help: "Total number of prompt proxy requests by outcome.",
		},
		[]string{"outcome"},
	)
)
