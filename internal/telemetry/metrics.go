package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsGenerated       = prometheus.NewCounter(prometheus.CounterOpts{Name: "print_jobs_generated_total", Help: "Print jobs created by queue regeneration"})
	Regenerations       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "print_queue_regenerations_total", Help: "Queue regenerations by result"}, []string{"result"})
	RegenerateDuration  = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "print_queue_regenerate_seconds", Help: "Time spent regenerating an item's queue", Buckets: prometheus.DefBuckets})
	JobTransitions      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "print_job_transitions_total", Help: "Print job lifecycle transitions by target status"}, []string{"status"})
	PiecesCompleted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "print_pieces_completed_total", Help: "Pieces credited to work items by completed jobs"})
	PrinterEventsQueued = prometheus.NewCounter(prometheus.CounterOpts{Name: "printer_events_enqueued_total", Help: "Printer state snapshots accepted from the telemetry feed"})
	PrinterEvents       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "printer_events_processed_total", Help: "Printer state snapshots processed by outcome"}, []string{"outcome"})
	EventFailures       = prometheus.NewCounter(prometheus.CounterOpts{Name: "printer_events_failed_total", Help: "Printer events that failed and will retry"})
	EventDeadLetter     = prometheus.NewCounter(prometheus.CounterOpts{Name: "printer_events_dead_letter_total", Help: "Printer events moved to DLQ"})
	EventQueueDepth     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "printer_events_queue_depth", Help: "Ready printer events"})
	InFlightGauge       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "printer_events_inflight", Help: "Printer events currently leased"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsGenerated,
			Regenerations,
			RegenerateDuration,
			JobTransitions,
			PiecesCompleted,
			PrinterEventsQueued,
			PrinterEvents,
			EventFailures,
			EventDeadLetter,
			EventQueueDepth,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
