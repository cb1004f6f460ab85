package alert

import "time"

// Status is the outcome of an alert query for the tracked subject.
type Status int

const (
	// StatusNoFace means the last detection result had no faces.
	StatusNoFace Status = iota
	// StatusMultiFace means more than one face was present, so no subject is tracked.
	StatusMultiFace
	// StatusClear means the single tracked subject is not alerting.
	StatusClear
	// StatusAlert means the single tracked subject is alerting.
	StatusAlert
)

// Wire strings returned by the alert query.
const (
	NoFaceText    = "NO FACE"
	MultiFaceText = "MULTI FACE"
	ClearText     = "0"
	AlertText     = "1"
)

// StatusOf derives the query status from a face count and the first face's alert flag.
func StatusOf(faces int, isAlert bool) Status {
	switch {
	case faces == 0:
		return StatusNoFace
	case faces > 1:
		return StatusMultiFace
	case isAlert:
		return StatusAlert
	default:
		return StatusClear
	}
}

// String returns the serialized form handed to the notifier.
func (s Status) String() string {
	switch s {
	case StatusMultiFace:
		return MultiFaceText
	case StatusClear:
		return ClearText
	case StatusAlert:
		return AlertText
	default:
		return NoFaceText
	}
}

// Event describes an alert raise for a single subject.
type Event struct {
	// WindowStart is when the eyes were last seen open (or first seen closed).
	WindowStart time.Time
	// TriggeredAt is the frame time at which the alert was raised.
	TriggeredAt time.Time
	// AvgEAR is the average eye-aspect-ratio of the triggering frame.
	AvgEAR float64
	// Model is the model family that produced the detection.
	Model string
}

// Closed returns how long the eyes had been closed when the alert was raised.
func (e Event) Closed() time.Duration {
	return e.TriggeredAt.Sub(e.WindowStart)
}

// Sink receives alert events from the frame pipeline.
// The pipeline calls it on the capture goroutine; the app queues events to a
// worker before fanning out to registered sinks.
type Sink interface {
	AlertRaised(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// AlertRaised calls f(e).
func (f SinkFunc) AlertRaised(e Event) { f(e) }
