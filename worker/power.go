package worker

import "math"

// Pseudo power model for the telemetry gauges.
const (
	cpuTDPWatts  = 25.0
	idleWatts    = 6.0
	powerCurvExp = 1.4
)

// estimatePower maps a utilization in [0,1] to an estimated draw in
// watts. The exponent models the superlinear dynamic-power ramp.
func estimatePower(util float64) float64 {
	dyn := cpuTDPWatts - idleWatts
	return idleWatts + dyn*math.Pow(util, powerCurvExp)
}
