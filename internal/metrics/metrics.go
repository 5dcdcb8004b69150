package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "majordomo_events_enqueued_total",
		Help: "Total number of events placed on the processing queue.",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "majordomo_events_processed_total",
		Help: "Total number of events handed to a registered handler.",
	})

	EventsUnhandled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "majordomo_events_unhandled_total",
		Help: "Total number of events dropped because no handler was registered.",
	})

	HandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "majordomo_handler_failures_total",
		Help: "Total number of handler errors or panics, labelled by event type.",
	}, []string{"event_type"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "majordomo_queue_depth",
		Help: "Current number of events waiting in the priority queue.",
	})

	DispatchesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "majordomo_dispatches_total",
		Help: "Total number of action dispatches, labelled by module and outcome.",
	}, []string{"module", "outcome"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "majordomo_dispatch_duration_ms",
		Help:    "Round-trip latency of action dispatches in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "majordomo_pending_requests",
		Help: "Current number of dispatched commands awaiting a response.",
	})

	MemoryEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "majordomo_memory_events",
		Help: "Current number of records held in event memory.",
	})

	GateBufferSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "majordomo_gate_buffer_size",
		Help: "Current number of diarization results buffered behind the gate.",
	})

	GateResultsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "majordomo_gate_results_published_total",
		Help: "Total number of diarization results published downstream.",
	})

	GateResultsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "majordomo_gate_results_discarded_total",
		Help: "Total number of buffered results discarded on rejection or reset.",
	})
)
