package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	faces  []Face
	err    error
	calls  int
	closed bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// MockFactory returns a Factory that always hands out d.
func MockFactory(d Detector) Factory {
	return func(ModelConfig) (Detector, error) {
		return d, nil
	}
}

// SetFaces sets the faces that will be returned by Detect.
func (m *MockDetector) SetFaces(faces []Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns a copy of the pre-configured faces or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.faces == nil {
		return nil, nil
	}
	out := make([]Face, len(m.faces))
	copy(out, m.faces)
	return out, nil
}

// Close marks the detector as closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns the number of Detect invocations.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close has been called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// OpenEyesFace returns a preset Face looking straight at the camera with eyes open.
func OpenEyesFace() Face {
	f := Face{
		Box:   image.Rect(220, 140, 420, 360),
		Score: 0.95,
	}
	f.SetEyes(
		eyeContour(270, 220, 40, 16),
		eyeContour(330, 220, 40, 16),
	)
	return f
}

// ClosedEyesFace returns a preset Face with both eyes nearly shut.
func ClosedEyesFace() Face {
	f := Face{
		Box:   image.Rect(220, 140, 420, 360),
		Score: 0.93,
	}
	f.SetEyes(
		eyeContour(270, 220, 40, 4),
		eyeContour(330, 220, 40, 4),
	)
	return f
}

// eyeContour builds a symmetric six-point eye of the given width and lid opening.
// Its aspect ratio is opening/width.
func eyeContour(left, centerY, width, opening float64) Eye {
	half := opening / 2
	return Eye{
		EyeP1: {X: left, Y: centerY},
		EyeP2: {X: left + width/3, Y: centerY - half},
		EyeP3: {X: left + 2*width/3, Y: centerY - half},
		EyeP4: {X: left + width, Y: centerY},
		EyeP5: {X: left + 2*width/3, Y: centerY + half},
		EyeP6: {X: left + width/3, Y: centerY + half},
	}
}
