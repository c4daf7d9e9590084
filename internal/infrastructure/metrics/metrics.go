package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Payment metrics
	PaymentsCreated    prometheus.Counter
	PaymentsAuthorized prometheus.Counter
	PaymentsDeclined   *prometheus.CounterVec
	PaymentsCancelled  prometheus.Counter
	PaymentAmount      prometheus.Histogram

	// Capture metrics
	CapturesSucceeded prometheus.Counter
	CapturesFailed    *prometheus.CounterVec
	CaptureRetries    *prometheus.CounterVec
	CaptureDuration   prometheus.Histogram

	// Gateway metrics
	GatewayCalls    *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	GatewayTimeouts prometheus.Counter

	// Ledger metrics
	JournalsPosted     prometheus.Counter
	JournalsDuplicated prometheus.Counter
	PostingsWritten    prometheus.Counter

	// Outbox metrics
	OutboxPublished *prometheus.CounterVec
	OutboxReclaimed prometheus.Counter
	OutboxLagTotal  prometheus.Gauge

	// Retry queue metrics
	RetriesScheduled *prometheus.CounterVec
	RetriesReclaimed prometheus.Counter
	RetriesDelivered prometheus.Counter

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBQueries     *prometheus.CounterVec
	DBDuration    *prometheus.HistogramVec
	DBConnections prometheus.Gauge
	DBErrors      *prometheus.CounterVec

	// Consumer metrics
	MessagesConsumed     *prometheus.CounterVec
	MessagesDeadlettered *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		// Payment metrics
		PaymentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_payments_created_total",
			Help: "Total number of payment intents created",
		}),
		PaymentsAuthorized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_payments_authorized_total",
			Help: "Total number of payments authorized",
		}),
		PaymentsDeclined: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payflow_payments_declined_total",
				Help: "Total number of payments declined by reason",
			},
			[]string{"reason"},
		),
		PaymentsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_payments_cancelled_total",
			Help: "Total number of payments cancelled",
		}),
		PaymentAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "payflow_payment_amount",
			Help:    "Payment amounts in minor units",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		}),

		// Capture metrics
		CapturesSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_captures_succeeded_total",
			Help: "Total number of payment orders captured",
		}),
		CapturesFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payflow_captures_failed_total",
				Help: "Total number of capture failures by reason",
			},
			[]string{"reason"},
		),
		CaptureRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payflow_capture_retries_total",
				Help: "Total number of capture retries by transient status",
			},
			[]string{"status"},
		),
		CaptureDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "payflow_capture_duration_seconds",
			Help:    "End-to-end duration of capture attempts",
			Buckets: prometheus.DefBuckets,
		}),

		// Gateway metrics
		GatewayCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payflow_gateway_calls_total",
				Help: "Total processor calls by operation and result code",
			},
			[]string{"operation", "code"},
		),
		GatewayDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payflow_gateway_duration_seconds",
				Help:    "Processor call duration",
				Buckets: []float64{.05, .1, .25, .5, .75, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		GatewayTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_gateway_timeouts_total",
			Help: "Total processor calls cut off by the per-call timeout",
		}),

		// Ledger metrics
		JournalsPosted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_journals_posted_total",
			Help: "Total journal entries posted",
		}),
		JournalsDuplicated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_journals_duplicated_total",
			Help: "Total journal entries rejected as duplicates",
		}),
		PostingsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_postings_written_total",
			Help: "Total posting rows written",
		}),

		// Outbox metrics
		OutboxPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payflow_outbox_published_total",
				Help: "Total outbox events published by event type",
			},
			[]string{"event_type"},
		),
		OutboxReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_outbox_reclaimed_total",
			Help: "Total stuck outbox claims returned to NEW",
		}),
		OutboxLagTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "payflow_outbox_lag",
			Help: "Events claimed in the last dispatch cycle",
		}),

		// Retry queue metrics
		RetriesScheduled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payflow_retries_scheduled_total",
				Help: "Total retries scheduled by command type",
			},
			[]string{"command"},
		),
		RetriesReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_retries_reclaimed_total",
			Help: "Total inflight retry items returned to pending",
		}),
		RetriesDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_retries_delivered_total",
			Help: "Total due retry items handed to handlers",
		}),

		// API metrics
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payflow_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payflow_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Database metrics
		DBQueries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payflow_db_queries_total",
				Help: "Total database queries",
			},
			[]string{"operation", "table"},
		),
		DBDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payflow_db_query_duration_seconds",
				Help:    "Database query duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		DBConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "payflow_db_connections",
			Help: "Current number of database connections",
		}),
		DBErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payflow_db_errors_total",
				Help: "Total database errors",
			},
			[]string{"operation"},
		),

		// Consumer metrics
		MessagesConsumed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payflow_messages_consumed_total",
				Help: "Total broker messages consumed by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		MessagesDeadlettered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payflow_messages_deadlettered_total",
				Help: "Total messages sent to a dead letter topic",
			},
			[]string{"topic"},
		),
	}
}
