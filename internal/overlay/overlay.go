// Package overlay draws detection boxes, the alert banner and the FPS label onto frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/ayusman/nidra/internal/alert"
	"github.com/ayusman/nidra/internal/detector"
	"gocv.io/x/gocv"
)

// Overlay text.
const (
	UnsupportedText = "unsupported"
	AlertText       = "ALERT"
)

var (
	white    = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	black    = color.RGBA{R: 0, G: 0, B: 0, A: 0}
	red      = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	green    = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	orange   = color.RGBA{R: 255, G: 128, B: 0, A: 0}
	eyeColor = color.RGBA{R: 0, G: 255, B: 255, A: 0}
)

// label draws text on a filled background whose top-left corner is at (x, y).
func label(frame *gocv.Mat, text string, x, y int, scale float64, fg, bg color.RGBA) {
	size, baseline := gocv.GetTextSizeWithBaseline(text, gocv.FontHersheySimplex, scale, 1)
	box := image.Rect(x, y, x+size.X, y+size.Y+baseline)
	gocv.Rectangle(frame, box, bg, -1)
	gocv.PutText(frame, text, image.Pt(x, y+size.Y), gocv.FontHersheySimplex, scale, fg, 1)
}

// centered draws a label in the middle of the frame.
func centered(frame *gocv.Mat, text string, scale float64, fg, bg color.RGBA) {
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, scale, 1)
	x := (frame.Cols() - size.X) / 2
	y := (frame.Rows() - size.Y) / 2
	label(frame, text, x, y, scale, fg, bg)
}

// Unsupported draws the centered placeholder shown when no detector is loaded.
func Unsupported(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}
	centered(frame, UnsupportedText, 1.0, black, white)
}

// Alert draws the centered red alert banner.
func Alert(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}
	centered(frame, AlertText, 1.0, white, red)
}

// FPS draws the smoothed frame rate in the top-right corner.
func FPS(frame *gocv.Mat, fps float64) {
	if frame == nil || frame.Empty() {
		return
	}
	text := fmt.Sprintf("FPS=%.2f", fps)
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.5, 1)
	label(frame, text, frame.Cols()-size.X, 0, 0.5, black, white)
}

// Faces draws a bounding box, the eye contours and the average EAR for each face.
// Faces flagged as alerting are outlined in red.
func Faces(frame *gocv.Mat, faces []detector.Face) {
	if frame == nil || frame.Empty() {
		return
	}

	for i := range faces {
		f := &faces[i]

		boxColor := green
		if f.IsAlert {
			boxColor = red
		} else if f.AverageEAR() < alert.EARThreshold {
			boxColor = orange
		}
		gocv.Rectangle(frame, f.Box, boxColor, 2)

		if f.HasLandmarks {
			drawEye(frame, f.LeftEye)
			drawEye(frame, f.RightEye)
		}

		text := fmt.Sprintf("EAR %.2f", f.AverageEAR())
		y := f.Box.Min.Y - 18
		if y < 0 {
			y = f.Box.Max.Y
		}
		label(frame, text, f.Box.Min.X, y, 0.5, black, boxColor)
	}
}

func drawEye(frame *gocv.Mat, eye detector.Eye) {
	for i := range eye {
		a := eye[i]
		b := eye[(i+1)%detector.NumEyePoints]
		gocv.Line(frame,
			image.Pt(int(a.X), int(a.Y)),
			image.Pt(int(b.X), int(b.Y)),
			eyeColor, 1)
	}
}
