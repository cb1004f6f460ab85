// Package app exposes the command surface of the drowsiness monitor: model
// loading, camera control, output selection and the alert query.
package app

import (
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/ayusman/nidra/internal/alert"
	"github.com/ayusman/nidra/internal/capture"
	"github.com/ayusman/nidra/internal/detector"
	"github.com/ayusman/nidra/internal/pipeline"
	"github.com/ayusman/nidra/internal/store"
	"github.com/rs/zerolog/log"
)

var (
	// ErrAlreadyInitialized is returned by a second Init call.
	ErrAlreadyInitialized = errors.New("app already initialized")
	// ErrTornDown is returned by Init after Teardown.
	ErrTornDown = errors.New("app torn down")
)

// Config holds configuration options for the application.
type Config struct {
	// Store persists alert events and the last loaded model. Optional.
	Store *store.Store
	// Factory builds detectors for LoadModel.
	Factory detector.Factory
	// Accelerators reports usable accelerator devices. Nil queries the host.
	Accelerators func() int
	// Devices maps camera facings to device indexes.
	Devices capture.Devices
	// Opener builds cameras. Nil opens local video devices.
	Opener capture.Opener
	// Clock stamps frames. Nil uses time.Now.
	Clock func() time.Time
}

// SavedModel is the persisted form of the last successful LoadModel call.
type SavedModel struct {
	ID      int `json:"id"`
	Backend int `json:"backend"`
}

// App is the drowsiness monitor. All methods are safe for concurrent use.
type App struct {
	config   Config
	slot     *detector.Slot
	pipeline *pipeline.Pipeline

	mu          sync.RWMutex
	window      *capture.CameraWindow
	notifier    Notifier
	output      capture.Output
	taps        []capture.Output
	sinks       []alert.Sink
	initialized bool
	tornDown    bool

	// Alerts raised on the capture goroutine are recorded and forwarded by alertLoop.
	alerts     chan alert.Event
	stopAlerts chan struct{}
	alertsDone chan struct{}
}

// alertQueueSize bounds alerts waiting to be recorded. Further alerts are dropped.
const alertQueueSize = 16

// New creates an App with an empty detector slot. Call Init before opening the camera.
func New(config Config) *App {
	a := &App{
		config:     config,
		notifier:   LogNotifier{},
		alerts:     make(chan alert.Event, alertQueueSize),
		stopAlerts: make(chan struct{}),
		alertsDone: make(chan struct{}),
	}
	a.slot = detector.NewSlot(config.Factory, config.Accelerators)

	opts := []pipeline.Option{pipeline.WithSink(alert.SinkFunc(a.queueAlert))}
	if config.Clock != nil {
		opts = append(opts, pipeline.WithClock(config.Clock))
	}
	a.pipeline = pipeline.New(a.slot, opts...)

	go a.alertLoop()
	return a
}

// Init binds the notifier and builds the camera window. It may be called once.
// A nil notifier logs and echoes.
func (a *App) Init(n Notifier) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tornDown {
		return ErrTornDown
	}
	if a.initialized {
		return ErrAlreadyInitialized
	}

	if n == nil {
		n = LogNotifier{}
	}
	a.notifier = n
	a.window = capture.NewCameraWindow(a.config.Devices, a.config.Opener, a.pipeline.OnFrame)
	a.window.SetOutput(a.outputsLocked())
	a.initialized = true

	log.Info().Msg("Monitor initialized")
	return nil
}

// LoadModel loads model modelID (0-6) on backend (0 cpu, 1 accelerated).
// Out-of-range input returns false and leaves the current detector in place.
// Requesting the accelerated backend on a host without an accelerator
// returns true with no detector loaded.
func (a *App) LoadModel(modelID, backend int) bool {
	if a.isTornDown() {
		return false
	}

	cfg, err := detector.ConfigFor(modelID, backend)
	if err != nil {
		log.Warn().Err(err).Int("model", modelID).Int("backend", backend).Msg("Rejected model")
		return false
	}

	if err := a.slot.Load(cfg); err != nil {
		log.Error().Err(err).Str("model", cfg.String()).Msg("Failed to load model")
		return false
	}

	if a.config.Store == nil {
		return true
	}
	settings := a.config.Store.Settings()
	if a.slot.Loaded() {
		saved := SavedModel{ID: modelID, Backend: backend}
		if err := settings.SetJSON(store.SettingModel, saved); err != nil {
			log.Warn().Err(err).Msg("Failed to persist model choice")
		}
	} else if err := settings.Delete(store.SettingModel); err != nil && !errors.Is(err, store.ErrNotFound) {
		// The replaced model must not come back on restart.
		log.Warn().Err(err).Msg("Failed to forget model choice")
	}
	return true
}

// RestoreModel reloads the model saved by the last successful LoadModel.
// It returns false when nothing was saved or the load fails.
func (a *App) RestoreModel() bool {
	if a.config.Store == nil {
		return false
	}

	var saved SavedModel
	if err := a.config.Store.Settings().GetJSON(store.SettingModel, &saved); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Msg("Ignoring saved model")
		}
		return false
	}

	log.Info().Int("model", saved.ID).Int("backend", saved.Backend).Msg("Restoring saved model")
	return a.LoadModel(saved.ID, saved.Backend)
}

// UnloadModel clears the detector slot. Frames keep flowing in degraded mode.
func (a *App) UnloadModel() {
	a.slot.Clear()
}

// OpenCamera starts frame delivery from the front (0) or back (1) camera.
func (a *App) OpenCamera(facing int) bool {
	f := capture.Facing(facing)
	if !f.Valid() {
		log.Warn().Int("facing", facing).Msg("Rejected camera facing")
		return false
	}

	w := a.cameraWindow()
	if w == nil {
		log.Warn().Msg("OpenCamera called before Init")
		return false
	}

	if err := w.Open(f); err != nil {
		log.Error().Err(err).Str("facing", f.String()).Msg("Failed to open camera")
		return false
	}
	return true
}

// CloseCamera stops frame delivery and waits for the in-flight frame.
// Closing a closed camera succeeds.
func (a *App) CloseCamera() bool {
	w := a.cameraWindow()
	if w == nil {
		return false
	}
	if err := w.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing camera")
		return false
	}
	return true
}

// SetOutputWindow directs rendered frames to out. Nil disables the output.
// The previous output is released if it is closable.
func (a *App) SetOutputWindow(out capture.Output) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tornDown {
		return false
	}

	prev := a.output
	a.output = out
	if a.window != nil {
		a.window.SetOutput(a.outputsLocked())
	}
	if prev != nil && !sameOutput(prev, out) {
		releaseOutput(prev)
	}
	return true
}

// AddOutput attaches an additional frame consumer, such as the MJPEG stream.
func (a *App) AddOutput(out capture.Output) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.taps = append(a.taps, out)
	if a.window != nil {
		a.window.SetOutput(a.outputsLocked())
	}
}

// AddSink registers a receiver of alert raise events.
func (a *App) AddSink(s alert.Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, s)
}

// QueryAlert returns "NO FACE", "MULTI FACE", "1" (alerting) or "0" after
// passing it through the notifier.
func (a *App) QueryAlert() string {
	status := a.pipeline.AlertStatus().String()

	a.mu.RLock()
	n := a.notifier
	a.mu.RUnlock()

	return n.Notify(status)
}

// AlertStatus returns the local alert status without notifying.
func (a *App) AlertStatus() alert.Status {
	return a.pipeline.AlertStatus()
}

// Teardown closes the camera, clears the detector and releases the output.
// Calls after the first are no-ops.
func (a *App) Teardown() {
	a.mu.Lock()
	if a.tornDown {
		a.mu.Unlock()
		return
	}
	a.tornDown = true
	w := a.window
	out := a.output
	a.output = nil
	a.mu.Unlock()

	if w != nil {
		if err := w.Release(); err != nil {
			log.Warn().Err(err).Msg("Error releasing camera window")
		}
	} else if out != nil {
		releaseOutput(out)
	}

	close(a.stopAlerts)
	<-a.alertsDone

	a.slot.Clear()
	a.pipeline.Reset()

	log.Info().Msg("Monitor torn down")
}

// Status is a snapshot of the monitor for status surfaces.
type Status struct {
	Alert      string         `json:"alert"`
	Phase      string         `json:"phase"`
	Model      string         `json:"model,omitempty"`
	CameraOpen bool           `json:"camera_open"`
	Facing     string         `json:"facing,omitempty"`
	Faces      int            `json:"faces"`
	Stats      pipeline.Stats `json:"stats"`
}

// Snapshot reports the current monitor state without notifying.
func (a *App) Snapshot() Status {
	s := Status{
		Alert: a.pipeline.AlertStatus().String(),
		Phase: a.pipeline.Phase().String(),
		Faces: len(a.pipeline.Faces()),
		Stats: a.pipeline.Stats(),
	}
	if cfg, ok := a.slot.Config(); ok {
		s.Model = cfg.String()
	}
	if w := a.cameraWindow(); w != nil {
		if f, open := w.Facing(); open {
			s.CameraOpen = true
			s.Facing = f.String()
		}
	}
	return s
}

// Pipeline returns the frame pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

func (a *App) cameraWindow() *capture.CameraWindow {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.tornDown {
		return nil
	}
	return a.window
}

func (a *App) isTornDown() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tornDown
}

// outputsLocked combines the user output with attached taps.
func (a *App) outputsLocked() capture.Output {
	if len(a.taps) == 0 {
		return a.output
	}
	tee := make(capture.Tee, 0, len(a.taps)+1)
	tee = append(tee, a.output)
	tee = append(tee, a.taps...)
	return tee
}

// queueAlert hands e to alertLoop without blocking the capture goroutine.
func (a *App) queueAlert(e alert.Event) {
	select {
	case <-a.stopAlerts:
		return
	default:
	}

	select {
	case a.alerts <- e:
	default:
		log.Warn().Time("triggered_at", e.TriggeredAt).Msg("Alert queue full, dropping alert")
	}
}

// alertLoop records and forwards queued alerts until Teardown, then drains the queue.
func (a *App) alertLoop() {
	defer close(a.alertsDone)

	for {
		select {
		case e := <-a.alerts:
			a.alertRaised(e)
		case <-a.stopAlerts:
			for {
				select {
				case e := <-a.alerts:
					a.alertRaised(e)
				default:
					return
				}
			}
		}
	}
}

// alertRaised persists the event and forwards it to registered sinks.
func (a *App) alertRaised(e alert.Event) {
	if a.config.Store != nil {
		rec := &store.AlertEvent{
			WindowStart: e.WindowStart,
			TriggeredAt: e.TriggeredAt,
			AvgEAR:      e.AvgEAR,
			Model:       e.Model,
		}
		if err := a.config.Store.Events().Create(rec); err != nil {
			log.Warn().Err(err).Msg("Failed to record alert event")
		}
	}

	a.mu.RLock()
	sinks := a.sinks
	a.mu.RUnlock()
	for _, s := range sinks {
		s.AlertRaised(e)
	}
}

func sameOutput(a, b capture.Output) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	t := reflect.TypeOf(a)
	return t == reflect.TypeOf(b) && t.Comparable() && a == b
}

func releaseOutput(out capture.Output) {
	c, ok := out.(interface{ Close() error })
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Msg("Error releasing output")
	}
}
