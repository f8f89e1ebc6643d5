package worker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmehra7/gridflow/queue"
)

func TestSleepRunnerElapsed(t *testing.T) {
	r := NewRegistry()
	elapsed, err := r.Run(queue.WorkloadSleep, 50, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 0.05)
}

func TestUnknownTagFallsBackToNoop(t *testing.T) {
	r := NewRegistry()
	elapsed, err := r.Run(queue.Workload("bogus"), 9999, 9999)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 0.05)
	assert.Less(t, elapsed, 1.0)
}

func TestMatmulRunner(t *testing.T) {
	r := NewRegistry()
	elapsed, err := r.Run(queue.WorkloadMatmul, 16, 2)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 0.0)
}

func TestConvRunner(t *testing.T) {
	r := NewRegistry()
	elapsed, err := r.Run(queue.WorkloadConv, 16, 2)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 0.0)
}

func TestRegisterOverridesRunner(t *testing.T) {
	r := NewRegistry()
	r.Register(queue.WorkloadMatmul, func(size, iterations int) (float64, error) {
		return 0, errors.New("boom")
	})
	_, err := r.Run(queue.WorkloadMatmul, 1, 1)
	assert.Error(t, err)
}

func TestEstimatePower(t *testing.T) {
	assert.InDelta(t, idleWatts, estimatePower(0), 1e-9)
	assert.InDelta(t, cpuTDPWatts, estimatePower(1), 1e-9)
	mid := estimatePower(0.5)
	assert.Greater(t, mid, idleWatts)
	assert.Less(t, mid, cpuTDPWatts)
}
