package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendsync",
		Name:      "sessions_recorded_total",
		Help:      "Attendance sessions written.",
	})

	ClassEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendsync",
		Name:      "class_events_total",
		Help:      "Class registry operations by kind and outcome.",
	}, []string{"kind", "outcome"})

	SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendsync",
		Name:      "sign_ins_total",
		Help:      "Sign-in attempts by role and outcome.",
	}, []string{"role", "outcome"})

	AggregateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendsync",
		Name:      "aggregate_duration_seconds",
		Help:      "Time spent recomputing an attendance analysis, store reads included.",
		Buckets:   prometheus.DefBuckets,
	})

	LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendsync",
		Name:      "live_subscribers",
		Help:      "Open live-update subscriptions.",
	})
)
