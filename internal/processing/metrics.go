package processing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arcwatch_queue_depth",
		Help: "Number of file IDs waiting in the ingestion queue",
	})

	filesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcwatch_files_processed_total",
		Help: "Files that reached a terminal status, by status",
	}, []string{"status"})

	fileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arcwatch_file_processing_seconds",
		Help:    "Wall time spent processing one file",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	framesSampled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcwatch_frames_sampled_total",
		Help: "Frames fed to the detector",
	})

	framesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcwatch_frames_skipped_total",
		Help: "Frames skipped because they could not be decoded or converted",
	})

	pulseOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcwatch_pulse_outcomes_total",
		Help: "Pulse state machine outcomes",
	}, []string{"outcome"})

	eventsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcwatch_events_total",
		Help: "Events written, by action (created or merged) and type",
	}, []string{"action", "type"})

	snapshotOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcwatch_snapshots_total",
		Help: "Snapshot retention decisions",
	}, []string{"op"})

	persistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcwatch_persistence_errors_total",
		Help: "Failed writes that were logged and skipped",
	}, []string{"target"})
)

// ObserveQueueDepth records the current queue length.
func ObserveQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
