// Package worker implements the single-slot execution node: advertise
// liveness and load, claim one job at a time from the personal list,
// execute it synchronously, publish the terminal status.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmehra7/gridflow/logging"
	"github.com/pmehra7/gridflow/observability"
	"github.com/pmehra7/gridflow/queue"
	"github.com/pmehra7/gridflow/store"
)

// ResultSink receives terminal statuses for durable retention outside
// the store. Sinks are best-effort: a sink error never changes a job's
// outcome.
type ResultSink interface {
	RecordResult(ctx context.Context, jobID string, status *queue.Status) error
}

// Config holds worker tunables.
type Config struct {
	// ID is the unique worker id; it is the capability that makes this
	// worker the sole consumer of its personal list.
	ID string
	// HeartbeatTTL bounds heartbeat staleness in the store.
	HeartbeatTTL time.Duration
	// ClaimTimeout bounds the blocking pop on the personal list.
	ClaimTimeout time.Duration
	// IdleSleep is the pause after an empty claim.
	IdleSleep time.Duration
	// PostJobPause is the brief pause after publishing a result.
	PostJobPause time.Duration
	// CostRatePerSec is the linear cost model coefficient (USD/s).
	CostRatePerSec float64
}

// DefaultConfig returns the production defaults for the given id.
func DefaultConfig(id string) Config {
	return Config{
		ID:             id,
		HeartbeatTTL:   20 * time.Second,
		ClaimTimeout:   2 * time.Second,
		IdleSleep:      250 * time.Millisecond,
		PostJobPause:   50 * time.Millisecond,
		CostRatePerSec: 6e-5,
	}
}

// Worker owns one execution slot. inflight and completed are only ever
// touched by the worker's own loop; they reach other components through
// the published stats record.
type Worker struct {
	cfg       Config
	store     store.Store
	runners   *Registry
	sink      ResultSink
	logger    zerolog.Logger
	inflight  int
	completed int
}

// New creates a Worker. sink may be nil.
func New(st store.Store, runners *Registry, cfg Config, sink ResultSink) *Worker {
	return &Worker{
		cfg:     cfg,
		store:   st,
		runners: runners,
		sink:    sink,
		logger:  logging.WithWorkerID(cfg.ID),
	}
}

// maxErrorStreak bounds the retry window for store failures. Past it
// the process terminates so a supervisor can restart against a healthy
// store.
const maxErrorStreak = 60

// Run executes the claim/execute/report loop until ctx is cancelled.
// A failed job never affects the next one; store errors abort the
// iteration and the loop continues, until an unbroken failure streak
// exhausts the retry window.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Msg("Worker loop starting")
	errStreak := 0
	fail := func(err error, msg string) {
		errStreak++
		if errStreak >= maxErrorStreak {
			w.logger.Fatal().Err(err).Int("streak", errStreak).Msg("State store unreachable beyond retry window")
		}
		w.logger.Error().Err(err).Msg(msg)
		sleep(ctx, w.cfg.IdleSleep)
	}

	for {
		if ctx.Err() != nil {
			w.logger.Info().Msg("Worker loop stopping")
			return
		}

		w.publishLoad(0)
		if err := queue.Heartbeat(ctx, w.store, w.cfg.ID, w.inflight, w.completed, w.cfg.HeartbeatTTL); err != nil {
			if ctx.Err() != nil {
				continue
			}
			fail(err, "Heartbeat failed")
			continue
		}

		job, ok, err := queue.PopForWorker(ctx, w.store, w.cfg.ID, w.cfg.ClaimTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			fail(err, "Claim failed")
			continue
		}
		errStreak = 0
		if !ok {
			sleep(ctx, w.cfg.IdleSleep)
			continue
		}

		w.execute(ctx, job)
	}
}

// execute runs one claimed job through its terminal status.
func (w *Worker) execute(ctx context.Context, job *queue.Job) {
	w.inflight = 1
	w.publishLoad(0.9)
	// Refresh the published stats so least-loaded placement sees the
	// occupied slot during execution.
	if err := queue.Heartbeat(ctx, w.store, w.cfg.ID, w.inflight, w.completed, w.cfg.HeartbeatTTL); err != nil {
		w.logger.Warn().Err(err).Msg("Pre-execution heartbeat failed")
	}

	start := time.Now()
	elapsed, runErr := w.runners.Run(job.Workload, job.Size, job.Iterations)
	latency := time.Since(start).Seconds()

	observability.JobLatency.Observe(latency)
	cost := w.cfg.CostRatePerSec * latency
	observability.WorkerCost.WithLabelValues(w.cfg.ID).Add(cost)

	sloViolation := latency > float64(job.DeadlineSec)
	if sloViolation {
		observability.SLOViolations.Inc()
	}

	var status *queue.Status
	if runErr != nil {
		w.logger.Error().Err(runErr).
			Str("job_id", job.JobID).
			Str("workload", string(job.Workload)).
			Msg("Workload failed")
		status = queue.FailedStatus(runErr.Error(), latency, sloViolation)
	} else {
		status = queue.DoneStatus(map[string]float64{
			"elapsed_sec": elapsed,
			"cost_usd":    cost,
		}, latency, sloViolation)
	}

	w.completed++
	observability.WorkerCompleted.WithLabelValues(w.cfg.ID).Inc()

	if err := queue.SetStatus(ctx, w.store, job.JobID, status); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.JobID).Msg("Terminal status write failed")
	} else {
		w.logger.Info().
			Str("job_id", job.JobID).
			Str("workload", string(job.Workload)).
			Float64("latency_sec", latency).
			Bool("slo_violation", sloViolation).
			Msg("Job finished")
	}

	if w.sink != nil {
		if err := w.sink.RecordResult(ctx, job.JobID, status); err != nil {
			w.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Result archive failed")
		}
	}

	w.inflight = 0
	w.publishLoad(0.1)
	sleep(ctx, w.cfg.PostJobPause)
}

// publishLoad updates the utilization, power, and inflight gauges.
func (w *Worker) publishLoad(util float64) {
	observability.WorkerUtilization.WithLabelValues(w.cfg.ID).Set(util)
	observability.WorkerPowerWatts.WithLabelValues(w.cfg.ID).Set(estimatePower(util))
	observability.WorkerInflight.WithLabelValues(w.cfg.ID).Set(float64(w.inflight))
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
