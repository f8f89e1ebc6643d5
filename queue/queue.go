// Package queue implements the job and worker state shared through the
// store: priority lists, the status hash, worker registration, and the
// heartbeat/stats records. All functions are safe for concurrent use;
// atomicity comes from the store primitives, not in-process locks.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pmehra7/gridflow/store"
)

// Enqueue stamps the job (id and submit_ts, both set exactly once here),
// writes the queued status, and appends the record to the tail of its
// priority list. It returns the job id.
func Enqueue(ctx context.Context, st store.Store, job *Job) (string, error) {
	if job.JobID == "" {
		job.JobID = NewJobID()
	}
	job.SubmitTS = float64(time.Now().UnixNano()) / 1e9

	if err := SetStatus(ctx, st, job.JobID, QueuedStatus(job)); err != nil {
		return "", fmt.Errorf("write queued status: %w", err)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := st.ListAppend(ctx, QueueKey(job.Priority), string(payload)); err != nil {
		return "", fmt.Errorf("append to priority list: %w", err)
	}
	return job.JobID, nil
}

// Lengths returns the current length of each priority list.
func Lengths(ctx context.Context, st store.Store) (high, med, low int64, err error) {
	if high, err = st.ListLen(ctx, store.QueueHigh); err != nil {
		return
	}
	if med, err = st.ListLen(ctx, store.QueueMed); err != nil {
		return
	}
	low, err = st.ListLen(ctx, store.QueueLow)
	return
}

// AssignToWorker appends the job to the worker's personal list and writes
// the assigned status. appended reports whether the list append took
// effect: when it is false the caller must requeue the job; when it is
// true a status-write error is tolerable, since readers accept observing
// queued briefly after the move.
func AssignToWorker(ctx context.Context, st store.Store, workerID string, job *Job) (appended bool, err error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("marshal job: %w", err)
	}
	if err := st.ListAppend(ctx, store.WorkerQueueKey(workerID), string(payload)); err != nil {
		return false, fmt.Errorf("append to worker list: %w", err)
	}
	return true, SetStatus(ctx, st, job.JobID, AssignedStatus(workerID, job))
}

// PopForWorker blocks up to timeout on the worker's personal list and
// decodes the head record. ok is false when the list stayed empty.
func PopForWorker(ctx context.Context, st store.Store, workerID string, timeout time.Duration) (*Job, bool, error) {
	payload, ok, err := st.ListPopHead(ctx, store.WorkerQueueKey(workerID), timeout)
	if err != nil || !ok {
		return nil, false, err
	}
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, false, fmt.Errorf("decode job payload: %w", err)
	}
	return &job, true, nil
}

// Requeue pushes the job back onto the head of its original priority
// list, preserving its position relative to everything behind it.
func Requeue(ctx context.Context, st store.Store, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return st.ListPushHead(ctx, QueueKey(job.Priority), string(payload))
}

// SetStatus writes the status record for a job.
func SetStatus(ctx context.Context, st store.Store, jobID string, status *Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return st.HashSet(ctx, store.JobStatusKey, jobID, string(payload))
}

// GetStatus reads the status record for a job. ok is false for unknown
// job ids.
func GetStatus(ctx context.Context, st store.Store, jobID string) (*Status, bool, error) {
	payload, ok, err := st.HashGet(ctx, store.JobStatusKey, jobID)
	if err != nil || !ok {
		return nil, false, err
	}
	var status Status
	if err := json.Unmarshal([]byte(payload), &status); err != nil {
		return nil, false, fmt.Errorf("decode status: %w", err)
	}
	return &status, true, nil
}

// Heartbeat registers the worker in the workers set, refreshes its
// heartbeat key (wall-clock integer second, evicted by the store after
// ttl), and publishes its inflight/completed stats.
func Heartbeat(ctx context.Context, st store.Store, workerID string, inflight, completed int, ttl time.Duration) error {
	if err := st.SetAdd(ctx, store.WorkersSet, workerID); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	if err := st.SetWithTTL(ctx, store.WorkerHeartbeatKey(workerID), ts, ttl); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return st.HashSetFields(ctx, store.WorkerStatsKey(workerID), map[string]string{
		"inflight":  strconv.Itoa(inflight),
		"completed": strconv.Itoa(completed),
	})
}

// ListWorkers returns every worker id ever registered. Membership
// outlives the heartbeat TTL; liveness is a separate check.
func ListWorkers(ctx context.Context, st store.Store) ([]string, error) {
	return st.SetMembers(ctx, store.WorkersSet)
}

// IsLive reports whether the worker's heartbeat key exists and its
// timestamp is within stale of now.
func IsLive(ctx context.Context, st store.Store, workerID string, stale time.Duration) (bool, error) {
	raw, ok, err := st.Get(ctx, store.WorkerHeartbeatKey(workerID))
	if err != nil || !ok {
		return false, err
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, nil
	}
	return time.Since(time.Unix(ts, 0)) < stale, nil
}

// WorkerStats reads a worker's published inflight/completed counters.
// Missing fields read as zero.
func WorkerStats(ctx context.Context, st store.Store, workerID string) (inflight, completed int, err error) {
	fields, err := st.HashGetAll(ctx, store.WorkerStatsKey(workerID))
	if err != nil {
		return 0, 0, err
	}
	inflight, _ = strconv.Atoi(fields["inflight"])
	completed, _ = strconv.Atoi(fields["completed"])
	return inflight, completed, nil
}

// WorkerQueueLen returns the length of a worker's personal list.
func WorkerQueueLen(ctx context.Context, st store.Store, workerID string) (int64, error) {
	return st.ListLen(ctx, store.WorkerQueueKey(workerID))
}
