package coordination

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmehra7/gridflow/queue"
	"github.com/pmehra7/gridflow/store"
)

func orphanJob(id string, priority queue.Priority) *queue.Job {
	return &queue.Job{
		JobID:       id,
		Workload:    queue.WorkloadSleep,
		Size:        10,
		Iterations:  1,
		Priority:    priority,
		DeadlineSec: 10,
		SubmitTS:    100,
	}
}

func placeOnWorker(t *testing.T, st store.Store, workerID string, job *queue.Job) {
	t.Helper()
	payload, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, st.ListAppend(context.Background(), store.WorkerQueueKey(workerID), string(payload)))
}

func registerDeadWorker(t *testing.T, st store.Store, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SetAdd(ctx, store.WorkersSet, id))
	// Heartbeat key already evicted: only set membership remains.
}

func TestReaperRequeuesOrphans(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := NewReaper(st, time.Minute, 20*time.Second)

	registerDeadWorker(t, st, "w-dead")
	placeOnWorker(t, st, "w-dead", orphanJob("job-1", queue.PriorityHigh))
	placeOnWorker(t, st, "w-dead", orphanJob("job-2", queue.PriorityLow))

	require.NoError(t, r.sweep(ctx))

	n, err := st.ListLen(ctx, store.WorkerQueueKey("w-dead"))
	require.NoError(t, err)
	assert.Zero(t, n, "dead worker's list must be drained")

	high, err := st.ListLen(ctx, store.QueueHigh)
	require.NoError(t, err)
	assert.Equal(t, int64(1), high)
	low, err := st.ListLen(ctx, store.QueueLow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), low)

	head, ok, err := st.ListIndex(ctx, store.QueueHigh, 0)
	require.NoError(t, err)
	require.True(t, ok)
	var job queue.Job
	require.NoError(t, json.Unmarshal([]byte(head), &job))
	assert.Equal(t, "job-1", job.JobID)
}

func TestReaperLeavesLiveWorkersAlone(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := NewReaper(st, time.Minute, 20*time.Second)

	require.NoError(t, queue.Heartbeat(ctx, st, "w-live", 0, 0, time.Minute))
	placeOnWorker(t, st, "w-live", orphanJob("job-keep", queue.PriorityMed))

	require.NoError(t, r.sweep(ctx))

	n, err := st.ListLen(ctx, store.WorkerQueueKey("w-live"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "live worker's list must not be touched")
	med, err := st.ListLen(ctx, store.QueueMed)
	require.NoError(t, err)
	assert.Zero(t, med)
}

func TestReaperStaleHeartbeatCountsAsDead(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := NewReaper(st, time.Minute, 20*time.Second)

	require.NoError(t, st.SetAdd(ctx, store.WorkersSet, "w-stale"))
	old := time.Now().Add(-time.Minute).Unix()
	require.NoError(t, st.SetWithTTL(ctx, store.WorkerHeartbeatKey("w-stale"), strconv.FormatInt(old, 10), time.Hour))
	placeOnWorker(t, st, "w-stale", orphanJob("job-3", queue.PriorityMed))

	require.NoError(t, r.sweep(ctx))

	med, err := st.ListLen(ctx, store.QueueMed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), med)
}
