// Package alert converts per-frame eye-aspect-ratio samples into a debounced drowsiness alert.
package alert

import "time"

// Alert thresholds.
const (
	// EARThreshold is the average eye-aspect-ratio below which the eyes are considered closed.
	EARThreshold = 0.35
	// AlertDelay is how long the eyes must stay closed before the alert is raised.
	AlertDelay = 2 * time.Second
)

// Phase is the externally visible state of the Machine.
type Phase int

const (
	// PhaseWatching means the last sample was at or above the threshold (or none was seen).
	PhaseWatching Phase = iota
	// PhaseWarming means the eyes are closed but the debounce window has not elapsed.
	PhaseWarming
	// PhaseAlerting means the alert has been raised.
	PhaseAlerting
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseWatching:
		return "watching"
	case PhaseWarming:
		return "warming"
	case PhaseAlerting:
		return "alerting"
	default:
		return "unknown"
	}
}

// Machine is a single-subject debounce state machine.
// Wall-clock time passed to Update is the only timing source.
//
// Machine is not safe for concurrent use; callers serialise access
// (the pipeline holds the detector slot lock around every call).
type Machine struct {
	threshold float64
	delay     time.Duration

	start    time.Time
	hasStart bool
	closed   bool
	alerting bool
}

// NewMachine creates a Machine using EARThreshold and AlertDelay.
func NewMachine() *Machine {
	return NewMachineWith(EARThreshold, AlertDelay)
}

// NewMachineWith creates a Machine with a custom threshold and debounce delay.
// Non-positive values fall back to the package defaults.
func NewMachineWith(threshold float64, delay time.Duration) *Machine {
	if threshold <= 0 {
		threshold = EARThreshold
	}
	if delay <= 0 {
		delay = AlertDelay
	}
	return &Machine{threshold: threshold, delay: delay}
}

// AverageEAR returns the mean of the left and right eye-aspect-ratios.
func AverageEAR(left, right float64) float64 {
	return (left + right) / 2
}

// Update feeds one sample and returns the alert state after the transition.
// raised is true only on the frame where the alert goes from off to on.
//
// Transition rule:
//   - avgEAR < threshold: start the debounce window if none is recorded,
//     raise the alert once more than delay has elapsed since the window start.
//   - avgEAR >= threshold: restart the window at now and clear the alert.
func (m *Machine) Update(avgEAR float64, now time.Time) (alerting, raised bool) {
	if avgEAR >= m.threshold {
		m.start = now
		m.hasStart = true
		m.closed = false
		m.alerting = false
		return false, false
	}

	if !m.hasStart {
		m.start = now
		m.hasStart = true
	}
	m.closed = true

	if now.Sub(m.start) > m.delay && !m.alerting {
		m.alerting = true
		return true, true
	}
	return m.alerting, false
}

// Alerting reports whether the alert is currently raised.
func (m *Machine) Alerting() bool {
	return m.alerting
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	switch {
	case m.alerting:
		return PhaseAlerting
	case m.closed:
		return PhaseWarming
	default:
		return PhaseWatching
	}
}

// WindowStart returns the start of the current debounce window, if any.
func (m *Machine) WindowStart() (time.Time, bool) {
	return m.start, m.hasStart
}

// Reset returns the machine to its initial state.
func (m *Machine) Reset() {
	m.start = time.Time{}
	m.hasStart = false
	m.closed = false
	m.alerting = false
}
