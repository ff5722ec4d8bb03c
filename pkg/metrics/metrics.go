package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	IntentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_intents_created_total",
		Help: "The total number of intents created",
	}, []string{"asset"})

	IntentsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_intents_executed_total",
		Help: "The total number of intent executions by outcome",
	}, []string{"asset", "outcome"})

	IntentsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_intents_completed_total",
		Help: "The total number of intents that exhausted their schedule",
	})

	IntentsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_intents_cancelled_total",
		Help: "The total number of intents cancelled by their owner",
	})

	ActiveIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_active_intents",
		Help: "The number of currently active intents across all wallets",
	})

	RegisteredWallets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_registered_wallets",
		Help: "The number of wallets that have ever created an intent",
	})

	CommittedFunds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_committed_funds",
		Help: "Funds currently reserved for future executions, per asset",
	}, []string{"asset"})

	TransferFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_transfer_failures_total",
		Help: "Individual recipient transfers that failed under the skip policy",
	}, []string{"asset"})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_scan_duration_seconds",
		Help:    "Time taken by a due-intent scan",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_execution_duration_seconds",
		Help:    "Time taken to execute a due intent",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	DroppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_events_dropped_total",
		Help: "Lifecycle events dropped because a subscriber channel was full",
	}, []string{"type"})

	// Keeper metrics

	KeeperExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keeper_executions_total",
		Help: "Keeper-triggered execution attempts by result",
	}, []string{"result"})

	RetryQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_retry_queue_size",
		Help: "Current size of the keeper retry queue",
	})

	RetriesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keeper_retries_executed_total",
		Help: "Number of retries that were executed",
	}, []string{"error_type"})

	RetriesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keeper_retries_skipped_total",
		Help: "Number of retries that were skipped",
	}, []string{"reason"})

	MaxRetriesReached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keeper_max_retries_reached_total",
		Help: "Number of executions that reached maximum retry attempts",
	}, []string{"error_type"})

	DroppedRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keeper_retries_dropped_total",
		Help: "Number of retries dropped due to queue capacity",
	})
)
