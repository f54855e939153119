// Package pacing implements the runtime's per-iteration pacing step
// (§4.3 step 2): an FPS cap and a low-pass-filtered low-latency sleep
// estimate, kept as a small internal helper in the style of
// internal/thread's atomic-field separation of render-thread state.
package pacing

import (
	"sync/atomic"
	"time"
)

// filterWeight is the exponential-moving-average weight given to each
// new sample; low enough that a single slow iteration doesn't swing
// the estimate.
const filterWeight = 0.1

// Estimator tracks a low-pass-filtered estimate of per-iteration wait
// time and exposes Sleep, the pacing call the runtime makes once per
// iteration (§4.3 step 2).
type Estimator struct {
	lastMark   atomic.Int64 // UnixNano of the previous Sleep call
	filteredNs atomic.Int64 // low-pass-filtered iteration duration, in ns
}

// NewEstimator returns a ready-to-use Estimator.
func NewEstimator() *Estimator {
	e := &Estimator{}
	e.lastMark.Store(nowNano())
	return e
}

// Sleep applies the configured pacing policy: if lowLatency is set, it
// sleeps a low-pass-filtered estimate of (time since the last Sleep
// call minus the target slack); if fpsLimit > 0, it extends the sleep
// to honour the cap. fpsLimit == 0 disables the cap.
func (e *Estimator) Sleep(fpsLimit float64, lowLatency bool) {
	now := nowNano()
	prev := e.lastMark.Swap(now)
	elapsed := now - prev
	if elapsed < 0 {
		elapsed = 0
	}

	filtered := e.filteredNs.Load()
	filtered = int64(float64(filtered)*(1-filterWeight) + float64(elapsed)*filterWeight)
	e.filteredNs.Store(filtered)

	var target time.Duration
	if lowLatency {
		const targetSlack = 500 * time.Microsecond
		want := time.Duration(filtered) - targetSlack
		if want > 0 {
			target = want
		}
	}
	if fpsLimit > 0 {
		period := time.Duration(float64(time.Second) / fpsLimit)
		if period > target {
			target = period
		}
	}
	if target > 0 {
		time.Sleep(target)
	}
}

// Estimate returns the current low-pass-filtered iteration duration.
func (e *Estimator) Estimate() time.Duration {
	return time.Duration(e.filteredNs.Load())
}

func nowNano() int64 {
	return time.Now().UnixNano()
}
