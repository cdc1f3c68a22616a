package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersTotal counts bridge transactions by final status
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "transfers_total",
		Help:      "Bridge transactions by terminal status",
	}, []string{"status"})

	// StepDurationSeconds tracks wall time per bridge step
	StepDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relay",
		Name:      "step_duration_seconds",
		Help:      "Duration of bridge step execution",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 300, 900, 3600},
	}, []string{"step"})

	// StepFailuresTotal counts failed step executions
	StepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "step_failures_total",
		Help:      "Step executions that ended in failure",
	}, []string{"step"})

	// AttestationPollsTotal counts individual attestation poll attempts
	AttestationPollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "attestation_polls_total",
		Help:      "Attestation service poll attempts",
	})

	// ReattestationsTotal counts re-attestation requests by outcome
	ReattestationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "reattestations_total",
		Help:      "Re-attestation requests by outcome",
	}, []string{"outcome"})

	// NotificationsTotal counts notification records created by type
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "notifications_total",
		Help:      "Notifications created by type",
	}, []string{"type"})

	// PrunedRecordsTotal counts records removed by the store pruner
	PrunedRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "pruned_records_total",
		Help:      "Records deleted by retention pruning",
	}, []string{"store"})

	// DatabaseConnectionsGauge exposes sql.DB pool stats
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "database_connections",
		Help:      "Database connection pool state",
	}, []string{"state"})
)
