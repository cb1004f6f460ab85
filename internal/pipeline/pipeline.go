// Package pipeline runs detection, the drowsiness decision and overlay
// rendering for every frame delivered by the camera.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/nidra/internal/alert"
	"github.com/ayusman/nidra/internal/detector"
	"github.com/ayusman/nidra/internal/fps"
	"github.com/ayusman/nidra/internal/overlay"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// Stats holds per-pipeline frame counters.
type Stats struct {
	Frames       uint64  `json:"frames"`
	Detected     uint64  `json:"detected"`
	Degraded     uint64  `json:"degraded"`
	DetectErrors uint64  `json:"detect_errors"`
	Alerts       uint64  `json:"alerts"`
	FPS          float64 `json:"fps"`
	FPSReady     bool    `json:"fps_ready"`
}

// Pipeline processes frames against the detector held in a Slot.
//
// The stored detection result, the alert machine and the counters are guarded
// by the slot lock, so a model swap can never interleave with a frame.
type Pipeline struct {
	slot *detector.Slot
	sink alert.Sink
	now  func() time.Time

	// guarded by the slot lock
	machine *alert.Machine
	faces   []detector.Face
	stats   Stats

	fpsMu sync.Mutex
	fps   *fps.Estimator
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now as the frame timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithSink sets the receiver of alert raise events.
func WithSink(s alert.Sink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithMachine replaces the default alert machine.
func WithMachine(m *alert.Machine) Option {
	return func(p *Pipeline) { p.machine = m }
}

// New creates a pipeline that detects with the detector held in slot.
func New(slot *detector.Slot, opts ...Option) *Pipeline {
	p := &Pipeline{
		slot:    slot,
		now:     time.Now,
		machine: alert.NewMachine(),
		fps:     fps.NewEstimator(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnFrame runs detection and the alert decision on frame and draws the
// overlays into it. It never fails; detection errors yield an empty result.
func (p *Pipeline) OnFrame(frame *gocv.Mat) {
	now := p.now()

	var raised *alert.Event
	p.slot.WithDetector(frame, func(h detector.Handle, frame *gocv.Mat) {
		p.stats.Frames++

		faces, err := p.detect(h, frame)
		if err != nil {
			p.stats.DetectErrors++
			log.Warn().Err(err).Str("model", h.Config.String()).Msg("Detection failed")
			faces = nil
		}
		p.faces = faces
		if len(faces) == 0 {
			return
		}
		p.stats.Detected++

		alerting := false
		if len(faces) == 1 {
			avg := faces[0].AverageEAR()
			var up bool
			alerting, up = p.machine.Update(avg, now)
			faces[0].IsAlert = alerting
			if up {
				start, _ := p.machine.WindowStart()
				raised = &alert.Event{
					WindowStart: start,
					TriggeredAt: now,
					AvgEAR:      avg,
					Model:       h.Config.String(),
				}
				p.stats.Alerts++
			}
			if alerting {
				log.Debug().Float64("ear", avg).Msg("Alerting")
			}
		}

		overlay.Faces(frame, faces)
		if alerting {
			overlay.Alert(frame)
		}
	}, func(frame *gocv.Mat) {
		p.stats.Frames++
		p.stats.Degraded++
		overlay.Unsupported(frame)
	})

	if raised != nil {
		log.Info().
			Dur("closed", raised.Closed()).
			Float64("ear", raised.AvgEAR).
			Str("model", raised.Model).
			Msg("Drowsiness alert raised")
		if p.sink != nil {
			p.sink.AlertRaised(*raised)
		}
	}

	p.fpsMu.Lock()
	rate, ok := p.fps.Tick(now)
	p.fpsMu.Unlock()
	if !ok {
		return
	}
	overlay.FPS(frame, rate)
	p.slot.Locked(func() {
		p.stats.FPS = rate
		p.stats.FPSReady = true
	})
}

// detect calls the detector, turning a panic into an ErrDetection error.
func (p *Pipeline) detect(h detector.Handle, frame *gocv.Mat) (faces []detector.Face, err error) {
	defer func() {
		if r := recover(); r != nil {
			faces = nil
			err = fmt.Errorf("%w: panic: %v", detector.ErrDetection, r)
		}
	}()

	start := time.Now()
	faces, err = h.Detector.Detect(frame)
	log.Debug().
		Str("model", h.Config.String()).
		Dur("elapsed", time.Since(start)).
		Int("faces", len(faces)).
		Msg("Detect")
	return faces, err
}

// AlertStatus reports the status of the last detection result.
func (p *Pipeline) AlertStatus() alert.Status {
	var s alert.Status
	p.slot.Locked(func() {
		s = alert.StatusOf(len(p.faces), len(p.faces) > 0 && p.faces[0].IsAlert)
	})
	return s
}

// Faces returns a copy of the last detection result.
func (p *Pipeline) Faces() []detector.Face {
	var out []detector.Face
	p.slot.Locked(func() {
		if len(p.faces) > 0 {
			out = make([]detector.Face, len(p.faces))
			copy(out, p.faces)
		}
	})
	return out
}

// Phase reports the alert machine phase.
func (p *Pipeline) Phase() alert.Phase {
	var ph alert.Phase
	p.slot.Locked(func() { ph = p.machine.Phase() })
	return ph
}

// Stats returns a snapshot of the frame counters.
func (p *Pipeline) Stats() Stats {
	var s Stats
	p.slot.Locked(func() { s = p.stats })
	return s
}

// Reset clears the stored result, the alert machine and the FPS history.
// Call it when frame delivery restarts.
func (p *Pipeline) Reset() {
	p.slot.Locked(func() {
		p.faces = nil
		p.machine.Reset()
		p.stats.FPS = 0
		p.stats.FPSReady = false
	})
	p.fpsMu.Lock()
	p.fps.Reset()
	p.fpsMu.Unlock()
}
