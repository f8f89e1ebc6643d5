package worker

import (
	"math/rand"
	"time"

	"github.com/pmehra7/gridflow/queue"
)

// RunnerFunc executes one workload kernel and returns the measured
// elapsed seconds. Runners are synchronous, must return a non-negative
// elapsed, and may fail.
type RunnerFunc func(size, iterations int) (float64, error)

// Registry maps workload tags to runners. Unknown tags resolve to a
// short no-op sleep so a bad tag never fails a job.
type Registry struct {
	runners  map[queue.Workload]RunnerFunc
	fallback RunnerFunc
}

// NewRegistry returns the registry with the built-in kernels.
func NewRegistry() *Registry {
	return &Registry{
		runners: map[queue.Workload]RunnerFunc{
			queue.WorkloadSleep:   runSleep,
			queue.WorkloadMatmul:  runMatmul,
			queue.WorkloadConv:    runConv,
			queue.WorkloadCNN:     runCNN,
			queue.WorkloadDDPMock: runDDPMock,
		},
		fallback: runNoop,
	}
}

// Register installs or replaces the runner for a tag.
func (r *Registry) Register(tag queue.Workload, fn RunnerFunc) {
	r.runners[tag] = fn
}

// Run dispatches to the runner for the tag, falling back to the no-op
// sleep for tags outside the registry.
func (r *Registry) Run(tag queue.Workload, size, iterations int) (float64, error) {
	fn, ok := r.runners[tag]
	if !ok {
		fn = r.fallback
	}
	return fn(size, iterations)
}

// runSleep sleeps size milliseconds. iterations is ignored.
func runSleep(size, _ int) (float64, error) {
	start := time.Now()
	time.Sleep(time.Duration(size) * time.Millisecond)
	return time.Since(start).Seconds(), nil
}

// runNoop is the unknown-tag fallback: a fixed short sleep.
func runNoop(_, _ int) (float64, error) {
	start := time.Now()
	time.Sleep(50 * time.Millisecond)
	return time.Since(start).Seconds(), nil
}

// runMatmul multiplies two size x size float32 matrices iterations
// times.
func runMatmul(size, iterations int) (float64, error) {
	a := randomMatrix(size, size)
	b := randomMatrix(size, size)
	out := make([]float32, size*size)

	start := time.Now()
	for it := 0; it < iterations; it++ {
		for i := 0; i < size; i++ {
			for j := 0; j < size; j++ {
				var sum float32
				for k := 0; k < size; k++ {
					sum += a[i*size+k] * b[k*size+j]
				}
				out[i*size+j] = sum
			}
		}
	}
	return time.Since(start).Seconds(), nil
}

// runConv applies a 3x3 kernel over a size x size image, iterations
// passes, feeding each pass's output into the next.
func runConv(size, iterations int) (float64, error) {
	img := randomMatrix(size, size)
	kernel := randomMatrix(3, 3)

	start := time.Now()
	for it := 0; it < iterations; it++ {
		out := make([]float32, size*size)
		for i := 1; i < size-1; i++ {
			for j := 1; j < size-1; j++ {
				var sum float32
				for ki := -1; ki <= 1; ki++ {
					for kj := -1; kj <= 1; kj++ {
						sum += img[(i+ki)*size+(j+kj)] * kernel[(ki+1)*3+(kj+1)]
					}
				}
				out[i*size+j] = sum
			}
		}
		img = out
	}
	return time.Since(start).Seconds(), nil
}

// runCNN mimics a small training loop: size is the batch, iterations the
// step count. Each step runs a dense forward pass and a backward-shaped
// pass over synthetic activations.
func runCNN(size, iterations int) (float64, error) {
	const features = 256
	weights := randomMatrix(features, features)

	start := time.Now()
	for step := 0; step < iterations; step++ {
		batch := randomMatrix(size, features)
		act := denseForward(batch, weights, size, features)
		// Backward-shaped pass: same cost profile as the forward.
		_ = denseForward(act, weights, size, features)
	}
	return time.Since(start).Seconds(), nil
}

// runDDPMock is a single-process stand-in for data-parallel training:
// dense steps with a fixed pause per step mimicking gradient sync cost.
func runDDPMock(size, iterations int) (float64, error) {
	const features = 512
	weights := randomMatrix(features, features)

	start := time.Now()
	for step := 0; step < iterations; step++ {
		batch := randomMatrix(size, features)
		_ = denseForward(batch, weights, size, features)
		time.Sleep(2 * time.Millisecond)
	}
	return time.Since(start).Seconds(), nil
}

func denseForward(in, weights []float32, rows, features int) []float32 {
	out := make([]float32, rows*features)
	for i := 0; i < rows; i++ {
		for j := 0; j < features; j++ {
			var sum float32
			for k := 0; k < features; k++ {
				sum += in[i*features+k] * weights[k*features+j]
			}
			if sum < 0 {
				sum = 0 // ReLU
			}
			out[i*features+j] = sum
		}
	}
	return out
}

func randomMatrix(rows, cols int) []float32 {
	m := make([]float32, rows*cols)
	for i := range m {
		m[i] = rand.Float32()
	}
	return m
}
