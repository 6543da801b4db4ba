package world

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the scheduler's prometheus collectors.
type Metrics struct {
	Queued     prometheus.Gauge
	InFlight   *prometheus.GaugeVec
	Completed  *prometheus.CounterVec
	Failed     *prometheus.CounterVec
	Forced     *prometheus.CounterVec
	Conflicts  prometheus.Counter
	Discarded  prometheus.Counter
	Disposed   prometheus.Counter
	JobSeconds *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Queued: f.NewGauge(prometheus.GaugeOpts{
			Name: "terrain_generation_queue_length",
			Help: "Chunks waiting for a generation slot",
		}),
		InFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "terrain_jobs_in_flight",
			Help: "Jobs currently running by kind",
		}, []string{"kind"}),
		Completed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "terrain_jobs_completed_total",
			Help: "Jobs completed by kind",
		}, []string{"kind"}),
		Failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "terrain_jobs_failed_total",
			Help: "Jobs that ended in an error by kind",
		}, []string{"kind"}),
		Forced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "terrain_jobs_forced_total",
			Help: "Jobs waited on synchronously after their tick deadline",
		}, []string{"kind"}),
		Conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "terrain_slot_conflicts_total",
			Help: "Requests rejected because a chunk was busy",
		}),
		Discarded: f.NewCounter(prometheus.CounterOpts{
			Name: "terrain_edit_points_discarded_total",
			Help: "Brush points that landed in no loaded chunk",
		}),
		Disposed: f.NewCounter(prometheus.CounterOpts{
			Name: "terrain_chunks_disposed_total",
			Help: "Chunks disposed and returned to the pool",
		}),
		JobSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "terrain_job_duration_seconds",
			Help:    "Time from job start to completion by kind",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"kind"}),
	}
}
