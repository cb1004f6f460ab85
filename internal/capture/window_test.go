package capture

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func loopingCamera(t *testing.T) *MockCamera {
	t.Helper()
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.SetFPS(200)
	return cam
}

type recordingOutput struct {
	shown  atomic.Int32
	closed atomic.Bool
	err    error
}

func (o *recordingOutput) Show(frame *gocv.Mat) error {
	o.shown.Add(1)
	return o.err
}

func (o *recordingOutput) Close() error {
	o.closed.Store(true)
	return nil
}

func TestCameraWindow_DeliversFrames(t *testing.T) {
	cam := loopingCamera(t)
	var handled atomic.Int32
	w := NewCameraWindow(Devices{}, MockOpener(cam), func(frame *gocv.Mat) {
		if frame == nil || frame.Empty() {
			t.Error("handler received an empty frame")
		}
		handled.Add(1)
	})
	out := &recordingOutput{}
	w.SetOutput(out)

	require.NoError(t, w.Open(FacingFront))
	assert.True(t, w.IsOpen())

	require.Eventually(t, func() bool { return out.shown.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, w.Close())

	assert.False(t, w.IsOpen())
	assert.False(t, cam.IsOpen())
	assert.GreaterOrEqual(t, handled.Load(), out.shown.Load(), "handler runs before output")
}

func TestCameraWindow_CloseWaitsForInFlightFrame(t *testing.T) {
	cam := loopingCamera(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var finished atomic.Bool

	w := NewCameraWindow(Devices{}, MockOpener(cam), func(*gocv.Mat) {
		once.Do(func() {
			close(entered)
			<-release
			finished.Store(true)
		})
	})
	require.NoError(t, w.Open(FacingFront))
	<-entered

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a frame was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-closed
	assert.True(t, finished.Load())
}

func TestCameraWindow_NoDeliveryAfterClose(t *testing.T) {
	cam := loopingCamera(t)
	var handled atomic.Int32
	w := NewCameraWindow(Devices{}, MockOpener(cam), func(*gocv.Mat) { handled.Add(1) })

	require.NoError(t, w.Open(FacingBack))
	require.Eventually(t, func() bool { return handled.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, w.Close())

	after := handled.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, handled.Load())
}

func TestCameraWindow_ReopenSwitchesFacing(t *testing.T) {
	cam := loopingCamera(t)
	var devices []int
	opener := func(id int) Camera {
		devices = append(devices, id)
		return cam
	}
	w := NewCameraWindow(Devices{Front: 0, Back: 1}, opener, nil)
	defer w.Close()

	require.NoError(t, w.Open(FacingFront))
	require.NoError(t, w.Open(FacingBack))

	facing, ok := w.Facing()
	require.True(t, ok)
	assert.Equal(t, FacingBack, facing)
	assert.Equal(t, []int{0, 1}, devices)
	assert.Equal(t, 2, cam.Opens())
}

func TestCameraWindow_OpenErrors(t *testing.T) {
	t.Run("invalid facing", func(t *testing.T) {
		w := NewCameraWindow(Devices{}, MockOpener(loopingCamera(t)), nil)
		assert.ErrorIs(t, w.Open(Facing(7)), ErrInvalidFacing)
		assert.False(t, w.IsOpen())
	})

	t.Run("device failure", func(t *testing.T) {
		cam := loopingCamera(t)
		busy := errors.New("device busy")
		cam.SetOpenError(busy)

		w := NewCameraWindow(Devices{}, MockOpener(cam), nil)
		assert.ErrorIs(t, w.Open(FacingFront), busy)
		assert.False(t, w.IsOpen())
	})
}

func TestCameraWindow_CloseWhenClosed(t *testing.T) {
	w := NewCameraWindow(Devices{}, nil, nil)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestCameraWindow_ReleaseClosesOutput(t *testing.T) {
	cam := loopingCamera(t)
	w := NewCameraWindow(Devices{}, MockOpener(cam), nil)
	out := &recordingOutput{}
	w.SetOutput(out)
	require.NoError(t, w.Open(FacingFront))

	require.NoError(t, w.Release())

	assert.True(t, out.closed.Load())
	assert.False(t, w.IsOpen())
	assert.Nil(t, w.SetOutput(nil))
}

func TestTee(t *testing.T) {
	a := &recordingOutput{}
	b := &recordingOutput{err: errors.New("window gone")}
	tee := Tee{a, nil, b}

	err := tee.Show(nil)

	assert.EqualError(t, err, "window gone")
	assert.Equal(t, int32(1), a.shown.Load())
	assert.Equal(t, int32(1), b.shown.Load())
}

func TestTee_Close(t *testing.T) {
	a := &recordingOutput{}
	b := &recordingOutput{}
	plain := OutputFunc(func(*gocv.Mat) error { return nil })

	require.NoError(t, Tee{a, nil, plain, b}.Close())

	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
}

func TestCameraWindow_ReleaseClosesTeeOutputs(t *testing.T) {
	w := NewCameraWindow(Devices{}, MockOpener(loopingCamera(t)), nil)
	user := &recordingOutput{}
	tap := &recordingOutput{}
	w.SetOutput(Tee{user, tap})
	require.NoError(t, w.Open(FacingFront))

	require.NoError(t, w.Release())

	assert.True(t, user.closed.Load())
	assert.True(t, tap.closed.Load())
}
