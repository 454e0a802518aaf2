package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "keybind"

var (
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "License verifications by outcome.",
	}, []string{"outcome"})

	KeysCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "keys_created_total",
		Help:      "License keys written to the store by type.",
	}, []string{"type"})

	KeyCreateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "key_create_failures_total",
		Help:      "License keys skipped during batch creation.",
	})

	Revocations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "revocations_total",
		Help:      "Successful revocations.",
	})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_operation_duration_seconds",
		Help:      "Latency of license store calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})

	Licenses = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "licenses",
		Help:      "License counts by state, refreshed by the stats task.",
	}, []string{"state"})
)
