package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmitted counts jobs accepted by the submission front-end.
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_submitted_total",
		Help: "Total jobs submitted",
	})

	// Assignments counts jobs moved onto a worker's personal list.
	Assignments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assignments_total",
		Help: "Jobs assigned by the scheduler",
	})

	// IdleLoops counts scheduler iterations with nothing to do.
	IdleLoops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idle_loops_total",
		Help: "Scheduler loops with nothing to do",
	})

	QueueHighLen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "q_high_len",
		Help: "High-priority queue length",
	})
	QueueMedLen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "q_med_len",
		Help: "Med-priority queue length",
	})
	QueueLowLen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "q_low_len",
		Help: "Low-priority queue length",
	})

	// WorkersAlive is the number of workers with a fresh heartbeat as
	// seen by the scheduler's last worker scan.
	WorkersAlive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workers_alive",
		Help: "Alive workers",
	})

	WorkerInflight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_inflight",
		Help: "Jobs in flight",
	}, []string{"worker"})

	WorkerUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_utilization",
		Help: "Estimated utilization (0..1)",
	}, []string{"worker"})

	WorkerPowerWatts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_power_watts",
		Help: "Estimated power draw (W)",
	}, []string{"worker"})

	WorkerCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_completed_total",
		Help: "Jobs completed",
	}, []string{"worker"})

	WorkerCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_cost_usd_total",
		Help: "Estimated cumulative cost (USD)",
	}, []string{"worker"})

	// JobLatency observes end-to-end latency from worker claim to
	// completion.
	JobLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "job_latency_seconds",
		Help:    "End-to-end job latency (sec)",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34, 55},
	})

	// SLOViolations counts jobs whose latency exceeded their deadline.
	SLOViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slo_violations_total",
		Help: "Jobs exceeding deadline SLO",
	})

	// SchedulerLoopDuration tracks one scheduler iteration.
	SchedulerLoopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_loop_duration_seconds",
		Help:    "Duration of one scheduler loop iteration",
		Buckets: prometheus.DefBuckets,
	})

	// StoreLatency tracks state-store roundtrips (fabric health).
	StoreLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_roundtrip_latency_seconds",
		Help:    "State store operation latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	// APIRateLimited counts submissions rejected by storm protection.
	APIRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "api_rate_limited_total",
		Help: "API requests rejected by the rate limiter",
	})

	// ReaperRequeues counts orphaned jobs returned to a priority queue.
	ReaperRequeues = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reaper_requeues_total",
		Help: "Jobs drained from dead workers back to their priority queue",
	})
)
