package tray

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayusman/nidra/internal/alert"
)

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{alert.AlertText, "Status: DROWSY"},
		{alert.ClearText, "Status: awake"},
		{alert.NoFaceText, "Status: no face"},
		{alert.MultiFaceText, "Status: multiple faces"},
		{"other", "Status: other"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, statusLabel(tt.status))
		})
	}
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Model: none", modelLabel(""))
	assert.Equal(t, "Model: blazeface/320@cpu", modelLabel("blazeface/320@cpu"))
	assert.Equal(t, "● Camera on", cameraLabel(true))
	assert.Equal(t, "○ Camera off", cameraLabel(false))
}

func TestTray_Defaults(t *testing.T) {
	tr := New()

	assert.Equal(t, alert.NoFaceText, tr.Status())
	assert.False(t, tr.CameraOpen())
}

func TestTray_HandleCamera(t *testing.T) {
	tests := []struct {
		name     string
		accept   bool
		wantOpen bool
	}{
		{name: "accepted", accept: true, wantOpen: true},
		{name: "rejected", accept: false, wantOpen: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New()
			var requested []bool
			tr.OnCamera(func(open bool) bool {
				requested = append(requested, open)
				return tt.accept
			})

			tr.handleCamera()

			assert.Equal(t, []bool{true}, requested)
			assert.Equal(t, tt.wantOpen, tr.CameraOpen())
		})
	}
}

func TestTray_HandleCameraWithoutCallback(t *testing.T) {
	tr := New()

	tr.handleCamera()
	assert.True(t, tr.CameraOpen())
	tr.handleCamera()
	assert.False(t, tr.CameraOpen())
}

func TestTray_HandleDashboard(t *testing.T) {
	tr := New()
	called := false
	tr.OnDashboard(func() { called = true })

	tr.handleDashboard()

	assert.True(t, called)
}
