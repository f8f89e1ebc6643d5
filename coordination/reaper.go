package coordination

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

// Reaper periodically drains the personal lists of workers whose
// heartbeat has gone stale, pushing each orphaned job back onto the head
// of its original priority list. Statuses are left untouched: the
// scheduler's next assignment overwrites them, so observers never see a
// state move backwards.
type Reaper struct {
	store    store.Store
	interval time.Duration
	stale    time.Duration
	logger   zerolog.Logger
}

// NewReaper creates a Reaper sweeping every interval, treating
// heartbeats older than stale as dead.
func NewReaper(st store.Store, interval, stale time.Duration) *Reaper {
	return &Reaper{
		store:    st,
		interval: interval,
		stale:    stale,
		logger:   logging.WithComponent("reaper"),
	}
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Sweep failed")
			}
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) error {
	workers, err := queue.ListWorkers(ctx, r.store)
	if err != nil {
		return err
	}
	for _, id := range workers {
		live, err := queue.IsLive(ctx, r.store, id, r.stale)
		if err != nil {
			return err
		}
		if live {
			continue
		}
		if err := r.drain(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// drain moves every job out of a dead worker's personal list. Each
// record is removed by value, so a worker that resurrects mid-drain
// cannot execute a job the reaper also requeued.
func (r *Reaper) drain(ctx context.Context, workerID string) error {
	key := store.WorkerQueueKey(workerID)
	for {
		payload, ok, err := r.store.ListIndex(ctx, key, 0)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		removed, err := r.store.ListRemoveFirst(ctx, key, payload)
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		var job queue.Job
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			r.logger.Warn().Err(err).Str("worker_id", workerID).Msg("Dropping undecodable orphan record")
			continue
		}
		if err := queue.Requeue(ctx, r.store, &job); err != nil {
			return err
		}
		observability.ReaperRequeues.Inc()
		r.logger.Info().
			Str("job_id", job.JobID).
			Str("worker_id", workerID).
			Str("priority", string(job.Priority)).
			Msg("Orphaned job returned to its priority queue")
	}
}
