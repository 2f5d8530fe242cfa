package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vault.
type Metrics struct {
	// --- Core processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreJournals       *prometheus.CounterVec
	CoreSequence       prometheus.Gauge

	// --- Channels & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	OutboundDrops       prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	EventSequenceGap      *prometheus.CounterVec
	EventOutOfOrder       *prometheus.CounterVec

	// --- Pool ---
	TrancheValue       *prometheus.GaugeVec
	TrancheShares      *prometheus.GaugeVec
	WithdrawQueueDepth *prometheus.GaugeVec
	DepositsApplied    *prometheus.CounterVec
	WithdrawalsSettled *prometheus.CounterVec
	PremiumRateBps     prometheus.Gauge
	ReservedFunds      *prometheus.GaugeVec

	// --- Waterfall ---
	LossesDistributed  *prometheus.CounterVec
	ProfitsDistributed *prometheus.CounterVec

	// --- Liquidation purchases ---
	PurchasesCommitted prometheus.Counter
	PurchasesCompleted prometheus.Counter
	PurchasesFailed    *prometheus.CounterVec

	// --- Capital adequacy ---
	CapitalRatioBps      prometheus.Gauge
	CircuitBreakerActive prometheus.Gauge

	// --- Reinsurance ---
	CoverageRequests    *prometheus.CounterVec
	ReinsuranceCapacity prometheus.Gauge

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge
	PersistBatchDur        prometheus.Histogram

	// --- Snapshot & replay ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	httpBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025,
		0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
	}

	return &Metrics{
		CoreEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_core_events_applied_total",
			Help: "Events successfully applied by the pipeline",
		}, []string{"event_type"}),

		CoreEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_core_events_rejected_total",
			Help: "Events rejected (dedup, gap, validation)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_core_event_apply_duration_seconds",
			Help:    "Time to apply a single event",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreJournals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_core_sequence",
			Help: "Current pipeline sequence number",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_size",
			Help: "Current depth of internal channels",
		}, []string{"channel"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_capacity",
			Help: "Capacity of internal channels",
		}, []string{"channel"}),

		OutboundDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_outbound_drops_total",
			Help: "Outbound publications dropped on full channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_backpressure_total",
			Help: "Times the pipeline blocked on the persistence channel",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_idempotency_duplicates_total",
			Help: "Duplicate events detected",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_dedup_lru_size",
			Help: "Entries in the idempotency LRU",
		}),

		EventSequenceGap: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_event_sequence_gaps_total",
			Help: "Sequence gaps detected per partition",
		}, []string{"partition"}),

		EventOutOfOrder: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_event_out_of_order_total",
			Help: "Out-of-order events per partition",
		}, []string{"partition"}),

		TrancheValue: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_tranche_value",
			Help: "Tranche value in fixed-point units",
		}, []string{"asset", "tranche"}),

		TrancheShares: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_tranche_shares",
			Help: "Outstanding tranche shares",
		}, []string{"asset", "tranche"}),

		WithdrawQueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_withdraw_queue_depth",
			Help: "Pending withdrawal requests",
		}, []string{"asset"}),

		DepositsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_deposits_applied_total",
			Help: "Deposits applied per tranche",
		}, []string{"asset", "tranche"}),

		WithdrawalsSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_withdrawals_settled_total",
			Help: "Withdrawals settled per asset and mode",
		}, []string{"asset", "mode"}),

		PremiumRateBps: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_premium_rate_bps",
			Help: "Active deposit premium rate in bps",
		}),

		ReservedFunds: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_reserved_funds",
			Help: "Funds reserved against pending purchases",
		}, []string{"asset"}),

		LossesDistributed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_losses_distributed_total",
			Help: "Loss value distributed per tranche",
		}, []string{"asset", "tranche"}),

		ProfitsDistributed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_profits_distributed_total",
			Help: "Profit value distributed per tranche",
		}, []string{"asset", "tranche"}),

		PurchasesCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_purchases_committed_total",
			Help: "Liquidation purchase commitments accepted",
		}),

		PurchasesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_purchases_completed_total",
			Help: "Liquidation purchases settled",
		}),

		PurchasesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_purchases_failed_total",
			Help: "Liquidation purchases failed or cancelled",
		}, []string{"reason"}),

		CapitalRatioBps: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_capital_ratio_bps",
			Help: "Capital adequacy ratio in bps",
		}),

		CircuitBreakerActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_circuit_breaker_active",
			Help: "1 when the capital circuit breaker is tripped",
		}),

		CoverageRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_coverage_requests_total",
			Help: "Reinsurance coverage requests by outcome",
		}, []string{"status"}),

		ReinsuranceCapacity: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_reinsurance_capacity",
			Help: "Total eligible reinsurance capital",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_events_written_total",
			Help: "Event envelopes written to the event log",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_journals_written_total",
			Help: "Journal rows written",
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_persist_errors_total",
			Help: "Persistence failures by kind",
		}, []string{"kind"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_retries_total",
			Help: "Persistence retry attempts",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_persist_last_sequence",
			Help: "Highest sequence durably persisted",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_duration_seconds",
			Help:    "Time to write one persistence batch",
			Buckets: httpBuckets,
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_snapshots_taken_total",
			Help: "State snapshots written",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_snapshot_duration_seconds",
			Help:    "Time to write one snapshot",
			Buckets: httpBuckets,
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_snapshot_last_sequence",
			Help: "Sequence of the latest snapshot",
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_replay_events_total",
			Help: "Events replayed during recovery",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_http_requests_total",
			Help: "HTTP API requests by path and code",
		}, []string{"path", "code"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: httpBuckets,
		}, []string{"path"}),
	}
}
