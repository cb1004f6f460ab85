package capture

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// FrameHandler processes one frame in place. The frame is only valid for the
// duration of the call.
type FrameHandler func(frame *gocv.Mat)

// Output receives rendered frames.
type Output interface {
	Show(frame *gocv.Mat) error
}

// OutputFunc adapts a function to the Output interface.
type OutputFunc func(frame *gocv.Mat) error

// Show calls f(frame).
func (f OutputFunc) Show(frame *gocv.Mat) error { return f(frame) }

// Tee fans a frame out to several outputs. Nil entries are skipped.
type Tee []Output

// Show hands frame to every output and joins their errors.
func (t Tee) Show(frame *gocv.Mat) error {
	var errs []error
	for _, out := range t {
		if out == nil {
			continue
		}
		if err := out.Show(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every output that is an io.Closer and joins their errors.
func (t Tee) Close() error {
	var errs []error
	for _, out := range t {
		if c, ok := out.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// CameraWindow couples a camera with the frame handler and the output surface.
//
// While open, a goroutine reads frames at the camera rate, passes each one to
// the handler and then to the output. Close stops delivery and waits for the
// in-flight frame to finish.
type CameraWindow struct {
	devices Devices
	open    Opener
	handler FrameHandler

	mu     sync.Mutex
	cam    Camera
	facing Facing
	stopCh chan struct{}
	doneCh chan struct{}

	outMu  sync.Mutex
	output Output
}

// NewCameraWindow creates a closed window. A nil opener uses NewCamera.
func NewCameraWindow(devices Devices, open Opener, handler FrameHandler) *CameraWindow {
	if open == nil {
		open = NewCamera
	}
	return &CameraWindow{
		devices: devices,
		open:    open,
		handler: handler,
	}
}

// Open starts delivering frames from the camera for facing.
// An already open camera is closed first.
func (w *CameraWindow) Open(facing Facing) error {
	deviceID, err := w.devices.DeviceFor(facing)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeLocked()

	cam := w.open(deviceID)
	if err := cam.Open(); err != nil {
		return err
	}

	w.cam = cam
	w.facing = facing
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(cam, w.stopCh, w.doneCh)

	log.Info().Str("facing", facing.String()).Int("device", deviceID).Msg("Camera opened")
	return nil
}

// Close stops frame delivery and releases the camera.
// Closing a closed window is a no-op.
func (w *CameraWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *CameraWindow) closeLocked() error {
	if w.cam == nil {
		return nil
	}

	close(w.stopCh)
	<-w.doneCh

	err := w.cam.Close()
	log.Info().Str("facing", w.facing.String()).Msg("Camera closed")

	w.cam = nil
	w.stopCh = nil
	w.doneCh = nil
	return err
}

// IsOpen reports whether frames are being delivered.
func (w *CameraWindow) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cam != nil
}

// Facing returns the facing of the open camera.
func (w *CameraWindow) Facing() (Facing, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.facing, w.cam != nil
}

// SetOutput replaces the output surface. Nil disables output.
// The previous output is returned so the caller can release it.
func (w *CameraWindow) SetOutput(out Output) Output {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	prev := w.output
	w.output = out
	return prev
}

// Release closes the camera and the output surface if it is an io.Closer.
// A Tee closes each of its closable outputs.
func (w *CameraWindow) Release() error {
	err := w.Close()
	if prev := w.SetOutput(nil); prev != nil {
		if c, ok := prev.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	}
	return err
}

// run is the delivery loop. It paces reads at the camera rate.
func (w *CameraWindow) run(cam Camera, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	rate := cam.FPS()
	if rate <= 0 {
		rate = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		frame, err := cam.ReadFrame()
		if err != nil {
			if !failing {
				log.Warn().Err(err).Msg("Error reading frame")
				failing = true
			}
			continue
		}
		if failing {
			log.Info().Msg("Frame delivery resumed")
			failing = false
		}

		w.deliver(frame)
		frame.Close()
	}
}

func (w *CameraWindow) deliver(frame *gocv.Mat) {
	if w.handler != nil {
		w.handler(frame)
	}

	w.outMu.Lock()
	out := w.output
	w.outMu.Unlock()
	if out == nil {
		return
	}
	if err := out.Show(frame); err != nil {
		log.Debug().Err(err).Msg("Output rejected frame")
	}
}
