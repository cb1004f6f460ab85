// Package testdata provides synthetic frames and scripted detectors for tests.
package testdata

import (
	"sync"

	"github.com/ayusman/nidra/internal/detector"
	"gocv.io/x/gocv"
)

// Frame dimensions used by the fixtures.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// Frame returns a mid-grey 640x480 BGR frame. The caller must close it.
func Frame() *gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), FrameHeight, FrameWidth, gocv.MatTypeCV8UC3)
	return &mat
}

// Frames returns n synthetic frames. Release them with CloseAll.
func Frames(n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		frames[i] = Frame()
	}
	return frames
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// SequenceDetector returns one scripted result per Detect call and keeps
// repeating the last one once the script runs out.
type SequenceDetector struct {
	mu     sync.Mutex
	script [][]detector.Face
	next   int
	closed bool
}

// NewSequenceDetector scripts the results of successive Detect calls.
func NewSequenceDetector(script ...[]detector.Face) *SequenceDetector {
	return &SequenceDetector{script: script}
}

// Factory returns a detector.Factory that always hands out d.
func (d *SequenceDetector) Factory() detector.Factory {
	return func(detector.ModelConfig) (detector.Detector, error) {
		d.mu.Lock()
		d.closed = false
		d.mu.Unlock()
		return d, nil
	}
}

func (d *SequenceDetector) Detect(*gocv.Mat) ([]detector.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.script) == 0 {
		return nil, nil
	}
	i := d.next
	if i >= len(d.script) {
		i = len(d.script) - 1
	} else {
		d.next++
	}

	faces := make([]detector.Face, len(d.script[i]))
	copy(faces, d.script[i])
	return faces, nil
}

func (d *SequenceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether the detector has been closed since it was last handed out.
func (d *SequenceDetector) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Open returns a single face with open eyes.
func Open() []detector.Face { return []detector.Face{detector.OpenEyesFace()} }

// ClosedEyes returns a single face with closed eyes.
func ClosedEyes() []detector.Face { return []detector.Face{detector.ClosedEyesFace()} }

// Repeat returns faces n times, for building scripts.
func Repeat(faces []detector.Face, n int) [][]detector.Face {
	out := make([][]detector.Face, n)
	for i := range out {
		out[i] = faces
	}
	return out
}
