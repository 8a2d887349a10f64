package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeledger_events_appended_total",
		Help: "Total number of events appended to the store, labelled by event type.",
	}, []string{"event_type"})

	AppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeledger_append_failures_total",
		Help: "Total number of event appends the store rejected or failed.",
	})

	LifecycleRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeledger_lifecycle_rejected_total",
		Help: "Total number of lifecycle commands refused, labelled by reason.",
	}, []string{"reason"})

	PayloadDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeledger_payload_decode_failures_total",
		Help: "Total number of latest-event payloads that could not be parsed and fell back to defaults.",
	})

	ListingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradeledger_listing_duration_ms",
		Help:    "Time to read and aggregate the full event log, in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	TradesListed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradeledger_trades",
		Help: "Number of distinct trades seen by the most recent listing.",
	})

	IngestEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeledger_ingest_enqueued_total",
		Help: "Total number of external events placed on the ingest queue.",
	})

	IngestDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeledger_ingest_dropped_total",
		Help: "Total number of external events rejected due to a full ingest queue.",
	})

	IngestQueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradeledger_ingest_queue_utilization_ratio",
		Help: "Current ingest queue utilization (0–1).",
	})
)
