package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riverdb_queries_total",
			Help: "Queries executed, by query type and response status",
		},
		[]string{"type", "status"},
	)
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riverdb_query_duration_seconds",
			Help:    "Query execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riverdb_sessions_active",
			Help: "Stream sessions currently held open for continuation",
		},
	)
)
