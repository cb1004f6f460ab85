// Package fps provides a moving-average frame rate estimator for the preview overlay.
package fps

import "time"

// HistorySize is the number of instantaneous rates averaged by the estimator.
const HistorySize = 10

// Estimator smooths per-frame rates over the last HistorySize frame intervals.
//
// Estimator is not safe for concurrent use; the pipeline only ticks it from
// the capture goroutine.
type Estimator struct {
	prev    time.Time
	primed  bool
	history [HistorySize]float64
}

// NewEstimator creates an empty Estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Tick records a frame at now and returns the smoothed rate in frames per second.
// The second return value is false until HistorySize rates have been recorded.
//
// Algorithm:
// 1. First call only stores now as the previous timestamp
// 2. rate = 1000 / (now - prev) in milliseconds
// 3. Shift history right by one and store rate at the front
// 4. Report the mean once the oldest slot is populated
func (e *Estimator) Tick(now time.Time) (float64, bool) {
	if !e.primed {
		e.prev = now
		e.primed = true
		return 0, false
	}

	intervalMs := float64(now.Sub(e.prev)) / float64(time.Millisecond)
	e.prev = now

	// A zero or negative interval (clock step, duplicate timestamp) has no finite rate.
	if intervalMs > 0 {
		rate := 1000.0 / intervalMs
		copy(e.history[1:], e.history[:HistorySize-1])
		e.history[0] = rate
	}

	if e.history[HistorySize-1] == 0 {
		return 0, false
	}

	var sum float64
	for _, r := range e.history {
		sum += r
	}
	return sum / HistorySize, true
}

// Reset discards all recorded history.
func (e *Estimator) Reset() {
	*e = Estimator{}
}
