package app

import (
	"sync"
	"testing"
	"time"

	"github.com/ayusman/nidra/internal/alert"
	"github.com/ayusman/nidra/internal/capture"
	"github.com/ayusman/nidra/internal/detector"
	"github.com/ayusman/nidra/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock advances one second per frame so a closed-eye script
// crosses the alert delay after a handful of frames.
type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestApp_CameraToAlert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s := newTestStore(t)
	frames := testdata.Frames(3)
	defer testdata.CloseAll(frames)

	cam := capture.NewMockCamera(frames, true)
	cam.SetFPS(100)

	script := append([][]detector.Face{testdata.Open()}, testdata.Repeat(testdata.ClosedEyes(), 5)...)
	det := testdata.NewSequenceDetector(script...)

	clock := &steppingClock{t: time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)}
	a := New(Config{
		Store:        s,
		Factory:      det.Factory(),
		Accelerators: func() int { return 0 },
		Opener:       capture.MockOpener(cam),
		Clock:        clock.Now,
	})
	defer a.Teardown()

	raised := make(chan alert.Event, 1)
	a.AddSink(alert.SinkFunc(func(e alert.Event) {
		select {
		case raised <- e:
		default:
		}
	}))

	require.NoError(t, a.Init(nil))
	require.True(t, a.LoadModel(0, 0))
	require.True(t, a.OpenCamera(0))

	select {
	case e := <-raised:
		assert.Greater(t, e.Closed(), 2*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for alert")
	}

	assert.Equal(t, "1", a.QueryAlert())
	require.True(t, a.CloseCamera())
	assert.False(t, a.Snapshot().CameraOpen)

	events, err := s.Events().List(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "blazeface/192@cpu", events[0].Model)
}
