package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

// Errors reported by detector loading and inference.
var (
	// ErrInvalidConfig is returned when a model id, family, size or backend is not supported.
	ErrInvalidConfig = errors.New("invalid detector config")
	// ErrInit is returned when a detector could not be constructed or initialized.
	ErrInit = errors.New("detector init failed")
	// ErrDetection wraps per-frame inference failures.
	ErrDetection = errors.New("detection failed")
	// ErrNoAccelerator is logged when an accelerated backend is requested on a host without one.
	ErrNoAccelerator = errors.New("no accelerator available")
)

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the detected faces.
	// Returns an empty slice if no faces are detected.
	Detect(frame *gocv.Mat) ([]Face, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Factory constructs and initializes a Detector for the given configuration.
// A Factory must either return a ready Detector or an error, never a half-built one.
type Factory func(cfg ModelConfig) (Detector, error)
