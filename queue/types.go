package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pmehra7/gridflow/store"
)

// Workload identifies a computational kernel. The set is closed; tags
// outside it are executed as a short no-op sleep by workers.
type Workload string

const (
	WorkloadMatmul  Workload = "matmul"
	WorkloadConv    Workload = "conv"
	WorkloadSleep   Workload = "sleep"
	WorkloadCNN     Workload = "cnn"
	WorkloadDDPMock Workload = "ddp_mock"
)

// KnownWorkloads is the closed set accepted at submission.
var KnownWorkloads = map[Workload]bool{
	WorkloadMatmul:  true,
	WorkloadConv:    true,
	WorkloadSleep:   true,
	WorkloadCNN:     true,
	WorkloadDDPMock: true,
}

// Priority is one of the three scheduling classes.
type Priority string

const (
	PriorityHigh Priority = "high"
	PriorityMed  Priority = "med"
	PriorityLow  Priority = "low"
)

const (
	MaxSize       = 8192
	MaxIterations = 5000
)

// Job is the immutable record of one submitted job. Field names are
// wire-exact; records round-trip through the store as JSON.
type Job struct {
	JobID       string   `json:"job_id"`
	Workload    Workload `json:"workload"`
	Size        int      `json:"size"`
	Iterations  int      `json:"iterations"`
	Priority    Priority `json:"priority"`
	DeadlineSec int      `json:"deadline_sec"`
	SubmitTS    float64  `json:"submit_ts"`
}

// AbsoluteDeadline is the wall-clock second by which the job should
// finish: submit_ts + deadline_sec.
func (j *Job) AbsoluteDeadline() float64 {
	return j.SubmitTS + float64(j.DeadlineSec)
}

// Validate rejects out-of-range or unknown-enum submissions before they
// reach a priority queue.
func (j *Job) Validate() error {
	if !KnownWorkloads[j.Workload] {
		return fmt.Errorf("unknown workload %q", j.Workload)
	}
	if j.Size < 1 || j.Size > MaxSize {
		return fmt.Errorf("size %d out of range [1,%d]", j.Size, MaxSize)
	}
	if j.Iterations < 1 || j.Iterations > MaxIterations {
		return fmt.Errorf("iterations %d out of range [1,%d]", j.Iterations, MaxIterations)
	}
	switch j.Priority {
	case PriorityHigh, PriorityMed, PriorityLow:
	default:
		return fmt.Errorf("unknown priority %q", j.Priority)
	}
	if j.DeadlineSec < 1 {
		return fmt.Errorf("deadline_sec %d must be positive", j.DeadlineSec)
	}
	return nil
}

// QueueKey returns the priority list key for a class. Unknown classes
// map to the med queue.
func QueueKey(p Priority) string {
	switch p {
	case PriorityHigh:
		return store.QueueHigh
	case PriorityLow:
		return store.QueueLow
	default:
		return store.QueueMed
	}
}

// NewJobID returns a fresh job id. The millisecond timestamp keeps ids
// roughly sortable; the random suffix keeps sub-millisecond bursts from
// colliding.
func NewJobID() string {
	return fmt.Sprintf("job-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Job status states. They form a DAG: queued -> assigned -> done.
// done is terminal and never overwritten.
const (
	StateQueued   = "queued"
	StateAssigned = "assigned"
	StateDone     = "done"
)

// Status is the per-job status record kept in the status hash. Pointer
// fields keep the wire shape per state exact: queued carries only info,
// assigned adds worker, done carries result/latency/slo (and error when
// the workload failed).
type Status struct {
	State        string             `json:"state"`
	Worker       string             `json:"worker,omitempty"`
	Info         *Job               `json:"info,omitempty"`
	Result       map[string]float64 `json:"result,omitempty"`
	LatencySec   *float64           `json:"latency_sec,omitempty"`
	SLOViolation *bool              `json:"slo_violation,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// QueuedStatus is the status written at enqueue.
func QueuedStatus(job *Job) *Status {
	return &Status{State: StateQueued, Info: job}
}

// AssignedStatus is the status written when the scheduler hands a job to
// a worker.
func AssignedStatus(workerID string, job *Job) *Status {
	return &Status{State: StateAssigned, Worker: workerID, Info: job}
}

// DoneStatus is the terminal status for a successfully executed job.
func DoneStatus(result map[string]float64, latencySec float64, sloViolation bool) *Status {
	return &Status{
		State:        StateDone,
		Result:       result,
		LatencySec:   &latencySec,
		SLOViolation: &sloViolation,
	}
}

// FailedStatus is the terminal status for a job whose workload returned
// an error. It is still state done so clients never wait forever.
func FailedStatus(errMsg string, latencySec float64, sloViolation bool) *Status {
	return &Status{
		State:        StateDone,
		Error:        errMsg,
		LatencySec:   &latencySec,
		SLOViolation: &sloViolation,
	}
}
