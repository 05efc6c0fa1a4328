// Package metrics provides Prometheus metrics for the reframing service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmittedTotal counts jobs accepted into the queue.
	JobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autocrop_jobs_submitted_total",
		Help: "Total number of reframing jobs accepted into the queue.",
	})

	// JobsCompletedTotal counts finished jobs by terminal status.
	JobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autocrop_jobs_completed_total",
		Help: "Total number of reframing jobs that reached a terminal state, by status.",
	}, []string{"status"})

	// JobDurationSeconds observes end-to-end processing time per job.
	JobDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autocrop_job_duration_seconds",
		Help:    "End-to-end processing duration of completed jobs in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	})

	// ScenesAnalyzedTotal counts analyzed scenes by chosen strategy.
	ScenesAnalyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autocrop_scenes_analyzed_total",
		Help: "Total number of scenes analyzed, by framing strategy.",
	}, []string{"strategy"})

	// FramesProcessedTotal counts frames composed and encoded.
	FramesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autocrop_frames_processed_total",
		Help: "Total number of video frames composed and encoded.",
	})

	// ActiveJobs tracks jobs currently being processed by a worker.
	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autocrop_active_jobs",
		Help: "Number of jobs currently being processed.",
	})

	// QueueDepth tracks jobs waiting for a worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autocrop_queue_depth",
		Help: "Number of jobs waiting in the queue.",
	})
)

// RecordJobSubmitted increments the submission counter and queue depth.
func RecordJobSubmitted() {
	JobsSubmittedTotal.Inc()
	QueueDepth.Inc()
}

// RecordJobStarted moves a job from the queue gauge to the active gauge.
func RecordJobStarted() {
	QueueDepth.Dec()
	ActiveJobs.Inc()
}

// RecordJobCompleted records a terminal status and releases the active slot.
func RecordJobCompleted(status string) {
	JobsCompletedTotal.WithLabelValues(status).Inc()
	ActiveJobs.Dec()
}

// RecordJobDequeued releases the queue slot for a job that never ran,
// for example one cancelled while still queued.
func RecordJobDequeued() {
	QueueDepth.Dec()
}

// ObserveJobDuration records how long a completed job took.
func ObserveJobDuration(d time.Duration) {
	JobDurationSeconds.Observe(d.Seconds())
}

// RecordSceneAnalyzed increments the per-strategy scene counter.
func RecordSceneAnalyzed(strategy string) {
	ScenesAnalyzedTotal.WithLabelValues(strategy).Inc()
}

// AddFramesProcessed adds the number of frames encoded for one job.
func AddFramesProcessed(n int) {
	if n > 0 {
		FramesProcessedTotal.Add(float64(n))
	}
}
