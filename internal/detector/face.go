// Package detector provides face detection interfaces, the model table and the
// synchronized detector slot shared by the frame pipeline and command callers.
package detector

import (
	"image"
	"math"
)

// Eye contour indices following the six-point eye-aspect-ratio convention.
// P1 and P4 are the horizontal corners, P2/P3 the upper lid, P6/P5 the lower lid.
const (
	EyeP1        = 0
	EyeP2        = 1
	EyeP3        = 2
	EyeP4        = 3
	EyeP5        = 4
	EyeP6        = 5
	NumEyePoints = 6
)

// Point represents a 2D image point in pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Eye is a six-point eye contour.
type Eye [NumEyePoints]Point

// distance calculates the Euclidean distance between two points.
func distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// AspectRatio computes the eye-aspect-ratio of the contour:
//
//	EAR = (|P2-P6| + |P3-P5|) / (2 * |P1-P4|)
//
// A degenerate contour (corners on top of each other) yields 0.
func (e Eye) AspectRatio() float64 {
	horizontal := distance(e[EyeP1], e[EyeP4])
	if horizontal < 1e-10 {
		return 0
	}
	vertical := distance(e[EyeP2], e[EyeP6]) + distance(e[EyeP3], e[EyeP5])
	return vertical / (2 * horizontal)
}

// Face is one detected face with its eye-aspect-ratios.
type Face struct {
	Box   image.Rectangle `json:"box"`
	Score float64         `json:"score"`

	// Eye contours, valid when HasLandmarks is set.
	LeftEye      Eye  `json:"left_eye"`
	RightEye     Eye  `json:"right_eye"`
	HasLandmarks bool `json:"has_landmarks"`

	EARLeft  float64 `json:"ear_left"`
	EARRight float64 `json:"ear_right"`

	// IsAlert carries the alert state of the tracked subject onto the result.
	IsAlert bool `json:"is_alert"`
}

// AverageEAR returns the mean of the left and right eye-aspect-ratios.
func (f *Face) AverageEAR() float64 {
	return (f.EARLeft + f.EARRight) / 2
}

// SetEyes stores both contours and recomputes the eye-aspect-ratios from them.
func (f *Face) SetEyes(left, right Eye) {
	f.LeftEye = left
	f.RightEye = right
	f.HasLandmarks = true
	f.EARLeft = left.AspectRatio()
	f.EARRight = right.AspectRatio()
}
