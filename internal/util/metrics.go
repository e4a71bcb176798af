package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TradesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trades_created_total",
		Help: "Total number of trades created",
	})

	TradesConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trades_confirmed_total",
		Help: "Total number of trades confirmed by both parties",
	})

	TradesCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trades_canceled_total",
		Help: "Total number of declined trades",
	})

	TradeAcceptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trade_accepts_total",
		Help: "Total number of accept responses applied",
	})

	TradeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trade_failures_total",
		Help: "Total number of rejected trade operations",
	}, []string{"operation", "reason"})

	TradeOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trade_operation_latency_seconds",
		Help:    "Latency of trade lifecycle operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	ItemLockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "item_lock_conflicts_total",
		Help: "Total number of item locks lost to another trade",
	})

	ItemsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "items_created_total",
		Help: "Total number of listed items",
	})

	OrphanedItemsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orphaned_items_released_total",
		Help: "Total number of trading items released by the sweeper",
	})

	SequenceAllocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sequence_allocations_total",
		Help: "Total number of ids allocated",
	}, []string{"counter"})

	SequenceAllocateLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sequence_allocate_latency_seconds",
		Help:    "Latency of id allocation",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})

	TradeEventsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trade_events_recorded_total",
		Help: "Total number of trade events written to the audit log",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
