// Package tray provides the system tray menu of the drowsiness monitor.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/nidra/internal/alert"
)

// Tray shows the alert status and exposes camera and quit controls.
type Tray struct {
	onCamera    func(open bool) bool
	onDashboard func()
	onQuit      func()
	cameraOpen  bool
	status      string
	model       string
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuStatus *systray.MenuItem
	menuModel  *systray.MenuItem
	menuCamera *systray.MenuItem
}

// New creates a Tray with the camera closed and no face reported.
func New() *Tray {
	return &Tray{
		status: alert.NoFaceText,
	}
}

// OnCamera sets the callback for the camera toggle. It receives the requested
// state and reports whether the change took effect.
func (t *Tray) OnCamera(fn func(open bool) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCamera = fn
}

// OnDashboard sets the callback for the dashboard menu item.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray loop started by Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
func (t *Tray) onReady() {
	systray.SetTitle("Nidra")
	systray.SetTooltip("Nidra drowsiness monitor")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(statusLabel(t.status), "Driver alert status")
	t.menuStatus.Disable()
	t.menuModel = systray.AddMenuItem(modelLabel(t.model), "Loaded detection model")
	t.menuModel.Disable()
	systray.AddSeparator()

	t.menuCamera = systray.AddMenuItem(cameraLabel(t.cameraOpen), "Start or stop the camera")
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Nidra")

	go func() {
		for {
			select {
			case <-t.menuCamera.ClickedCh:
				t.handleCamera()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleCamera flips the camera state if the callback accepts the change.
func (t *Tray) handleCamera() {
	t.mu.RLock()
	want := !t.cameraOpen
	callback := t.onCamera
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil && !callback(want) {
		return
	}
	t.SetCameraOpen(want)
}

func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetStatus shows the latest alert status.
func (t *Tray) SetStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = status
	if t.menuStatus == nil {
		return
	}
	t.menuStatus.SetTitle(statusLabel(status))
	if status == alert.AlertText {
		systray.SetTitle("Nidra ⚠")
	} else {
		systray.SetTitle("Nidra")
	}
}

// SetModel shows the loaded model, or none when empty.
func (t *Tray) SetModel(model string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.model = model
	if t.menuModel != nil {
		t.menuModel.SetTitle(modelLabel(model))
	}
}

// SetCameraOpen updates the camera toggle.
func (t *Tray) SetCameraOpen(open bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cameraOpen = open
	if t.menuCamera != nil {
		t.menuCamera.SetTitle(cameraLabel(open))
	}
}

// Status returns the last status shown.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// CameraOpen returns the camera toggle state.
func (t *Tray) CameraOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cameraOpen
}

// Notify shows status and returns it unchanged, so the tray can sit in a notifier chain.
func (t *Tray) Notify(status string) string {
	t.SetStatus(status)
	return status
}

// AlertRaised shows the alert immediately instead of waiting for the next query.
func (t *Tray) AlertRaised(alert.Event) {
	t.SetStatus(alert.AlertText)
}

func statusLabel(status string) string {
	switch status {
	case alert.AlertText:
		return "Status: DROWSY"
	case alert.ClearText:
		return "Status: awake"
	case alert.NoFaceText:
		return "Status: no face"
	case alert.MultiFaceText:
		return "Status: multiple faces"
	default:
		return "Status: " + status
	}
}

func modelLabel(model string) string {
	if model == "" {
		return "Model: none"
	}
	return "Model: " + model
}

func cameraLabel(open bool) string {
	if open {
		return "● Camera on"
	}
	return "○ Camera off"
}
