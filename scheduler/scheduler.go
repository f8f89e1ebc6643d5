// Package scheduler drains the three priority lists into workers'
// personal lists. Priority is strict: no med or low job moves while the
// high list is non-empty. Within one list a small peek window adds
// deadline awareness without a global priority queue.
package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmehra7/gridflow/logging"
	"github.com/pmehra7/gridflow/observability"
	"github.com/pmehra7/gridflow/queue"
	"github.com/pmehra7/gridflow/store"
)

// Config holds scheduler tunables.
type Config struct {
	// Loop is the idle sleep between iterations with nothing to do.
	Loop time.Duration
	// PeekWindow bounds the list prefix considered for earliest-deadline
	// selection. Remove-by-value is O(N) on the list, so the window stays
	// small to cap per-decision cost.
	PeekWindow int
	// HeartbeatStale is the age past which a worker heartbeat no longer
	// counts as live.
	HeartbeatStale time.Duration
	// NoWorkerSleep is the pause after requeueing a job because no live
	// worker exists.
	NoWorkerSleep time.Duration
	// ErrorBackoff is the pause after a store error aborts an iteration.
	ErrorBackoff time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Loop:           600 * time.Millisecond,
		PeekWindow:     4,
		HeartbeatStale: 20 * time.Second,
		NoWorkerSleep:  time.Second,
		ErrorBackoff:   500 * time.Millisecond,
	}
}

// Scheduler is one logical dispatch loop. Running several instances is
// tolerated (remove-by-value lets at most one win each pick) but
// inefficient.
type Scheduler struct {
	store  store.Store
	cfg    Config
	logger zerolog.Logger
}

// New creates a Scheduler over the given store.
func New(st store.Store, cfg Config) *Scheduler {
	if cfg.PeekWindow < 1 {
		cfg.PeekWindow = 1
	}
	return &Scheduler{
		store:  st,
		cfg:    cfg,
		logger: logging.WithComponent("scheduler"),
	}
}

// maxErrorStreak bounds the retry window for store failures. Past it
// the process terminates so a supervisor can restart against a healthy
// store.
const maxErrorStreak = 30

// Run executes the dispatch loop until ctx is cancelled. Store failures
// abort the iteration, get logged, and the loop continues after a short
// backoff; only a long unbroken failure streak is fatal.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Msg("Scheduler loop starting")
	errStreak := 0
	for {
		if ctx.Err() != nil {
			s.logger.Info().Msg("Scheduler loop stopping")
			return
		}
		start := time.Now()
		if err := s.tick(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			errStreak++
			if errStreak >= maxErrorStreak {
				s.logger.Fatal().Err(err).Int("streak", errStreak).Msg("State store unreachable beyond retry window")
			}
			s.logger.Error().Err(err).Msg("Scheduling iteration failed")
			sleep(ctx, s.cfg.ErrorBackoff)
		} else {
			errStreak = 0
		}
		observability.SchedulerLoopDuration.Observe(time.Since(start).Seconds())
	}
}

// tick runs one scheduling decision: refresh gauges, pick a job, pick a
// worker, assign.
func (s *Scheduler) tick(ctx context.Context) error {
	high, med, low, err := queue.Lengths(ctx, s.store)
	if err != nil {
		return err
	}
	observability.QueueHighLen.Set(float64(high))
	observability.QueueMedLen.Set(float64(med))
	observability.QueueLowLen.Set(float64(low))

	job, err := s.pickJob(ctx)
	if err != nil {
		return err
	}
	if job == nil {
		observability.IdleLoops.Inc()
		sleep(ctx, s.cfg.Loop)
		return nil
	}

	workerID, err := s.bestWorker(ctx)
	if err != nil {
		// The job is already off its priority list; put it back before
		// surfacing the error so it cannot be lost.
		if reqErr := queue.Requeue(ctx, s.store, job); reqErr != nil {
			s.logger.Error().Err(reqErr).Str("job_id", job.JobID).Msg("Requeue after worker scan failure also failed; job may be stuck in status queued")
		}
		return err
	}
	if workerID == "" {
		if err := queue.Requeue(ctx, s.store, job); err != nil {
			return err
		}
		s.logger.Debug().Str("job_id", job.JobID).Msg("No live worker; job returned to queue head")
		sleep(ctx, s.cfg.NoWorkerSleep)
		return nil
	}

	appended, err := queue.AssignToWorker(ctx, s.store, workerID, job)
	if err != nil {
		if !appended {
			if reqErr := queue.Requeue(ctx, s.store, job); reqErr != nil {
				s.logger.Error().Err(reqErr).Str("job_id", job.JobID).Msg("Requeue after failed assign also failed")
			}
			return err
		}
		// The move happened; only the status write lagged. Readers
		// tolerate seeing queued briefly, so log and keep going.
		s.logger.Warn().Err(err).Str("job_id", job.JobID).Str("worker_id", workerID).Msg("Assigned status write failed after list move")
	}
	observability.Assignments.Inc()
	s.logger.Debug().
		Str("job_id", job.JobID).
		Str("worker_id", workerID).
		Str("priority", string(job.Priority)).
		Msg("Job assigned")
	return nil
}

// pickJob walks the priority lists in strict order and, for the first
// non-empty one, removes the job with the earliest absolute deadline
// among the first min(PeekWindow, len) records. Ties go to the lower
// list index, which preserves submission order.
func (s *Scheduler) pickJob(ctx context.Context) (*queue.Job, error) {
	for _, key := range store.PriorityOrder {
		job, err := s.pickFromList(ctx, key)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
	}
	return nil, nil
}

func (s *Scheduler) pickFromList(ctx context.Context, key string) (*queue.Job, error) {
	n, err := s.store.ListLen(ctx, key)
	if err != nil {
		return nil, err
	}
	window := int64(s.cfg.PeekWindow)
	if n < window {
		window = n
	}
	if window == 0 {
		return nil, nil
	}

	bestIdx := -1
	var bestPayload string
	var bestJob queue.Job
	var bestDeadline float64
	for i := int64(0); i < window; i++ {
		payload, ok, err := s.store.ListIndex(ctx, key, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			// The list shrank under us; judge what we saw.
			break
		}
		var job queue.Job
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			s.logger.Warn().Err(err).Str("queue", key).Msg("Skipping undecodable queue record")
			continue
		}
		if dl := job.AbsoluteDeadline(); bestIdx < 0 || dl < bestDeadline {
			bestIdx = int(i)
			bestPayload = payload
			bestJob = job
			bestDeadline = dl
		}
	}
	if bestIdx < 0 {
		return nil, nil
	}

	removed, err := s.store.ListRemoveFirst(ctx, key, bestPayload)
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		// Another scheduler took it; our peek is stale. Move on.
		return nil, nil
	}
	return &bestJob, nil
}

// bestWorker scans the workers set, drops workers without a fresh
// heartbeat, and returns the live worker with the smallest inflight
// count. Ties go to the lexically smaller id. It returns "" when no
// worker is live, and keeps the workers_alive gauge current either way.
func (s *Scheduler) bestWorker(ctx context.Context) (string, error) {
	workers, err := queue.ListWorkers(ctx, s.store)
	if err != nil {
		return "", err
	}

	alive := 0
	best := ""
	bestInflight := 0
	for _, id := range workers {
		live, err := queue.IsLive(ctx, s.store, id, s.cfg.HeartbeatStale)
		if err != nil {
			return "", err
		}
		if !live {
			continue
		}
		alive++
		inflight, _, err := queue.WorkerStats(ctx, s.store, id)
		if err != nil {
			return "", err
		}
		if best == "" || inflight < bestInflight || (inflight == bestInflight && id < best) {
			best = id
			bestInflight = inflight
		}
	}
	observability.WorkersAlive.Set(float64(alive))
	return best, nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
