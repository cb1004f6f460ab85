package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1700000000, 0)

func at(d time.Duration) time.Time { return epoch.Add(d) }

func TestMachine_SustainedClosure(t *testing.T) {
	m := NewMachine()

	// Eyes seen open, then closed at one second intervals.
	alerting, _ := m.Update(0.5, at(0))
	require.False(t, alerting)

	want := []bool{false, false, true, true, true}
	for i, w := range want {
		got, _ := m.Update(0.2, at(time.Duration(i+1)*time.Second))
		assert.Equalf(t, w, got, "update %d", i+1)
	}
}

func TestMachine_ColdStartOpensWindowOnFirstClosedSample(t *testing.T) {
	m := NewMachine()

	want := []bool{false, false, false, true}
	for i, w := range want {
		got, _ := m.Update(0.2, at(time.Duration(i)*time.Second))
		assert.Equalf(t, w, got, "update %d", i+1)
	}
}

func TestMachine_OpenEyesResetDebounce(t *testing.T) {
	m := NewMachine()

	m.Update(0.5, at(0))
	got, _ := m.Update(0.2, at(1*time.Second))
	assert.False(t, got)

	// Blink back open before the 2 second mark.
	got, _ = m.Update(0.5, at(1500*time.Millisecond))
	assert.False(t, got)
	assert.Equal(t, PhaseWatching, m.Phase())

	for _, d := range []time.Duration{2500 * time.Millisecond, 3500 * time.Millisecond} {
		got, _ = m.Update(0.2, at(d))
		assert.Falsef(t, got, "sample at %v should still be debounced", d)
	}

	got, _ = m.Update(0.2, at(3600*time.Millisecond))
	assert.True(t, got, "more than 2s since the eyes were last open")
}

func TestMachine_RaisedOnlyOnEdge(t *testing.T) {
	m := NewMachine()
	m.Update(0.5, at(0))

	_, raised := m.Update(0.1, at(3*time.Second))
	assert.True(t, raised)

	alerting, raised := m.Update(0.1, at(4*time.Second))
	assert.True(t, alerting)
	assert.False(t, raised)

	alerting, raised = m.Update(0.4, at(5*time.Second))
	assert.False(t, alerting)
	assert.False(t, raised)
}

func TestMachine_ThresholdBoundaryIsOpen(t *testing.T) {
	m := NewMachine()
	m.Update(0.2, at(0))

	// Exactly at the threshold counts as open eyes.
	got, _ := m.Update(EARThreshold, at(10*time.Second))
	assert.False(t, got)
	start, ok := m.WindowStart()
	require.True(t, ok)
	assert.Equal(t, at(10*time.Second), start)
}

func TestMachine_Phases(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, PhaseWatching, m.Phase())

	m.Update(0.2, at(0))
	assert.Equal(t, PhaseWarming, m.Phase())

	m.Update(0.2, at(3*time.Second))
	assert.Equal(t, PhaseAlerting, m.Phase())
	assert.Equal(t, "alerting", m.Phase().String())

	m.Update(0.9, at(4*time.Second))
	assert.Equal(t, PhaseWatching, m.Phase())

	m.Reset()
	_, ok := m.WindowStart()
	assert.False(t, ok)
	assert.False(t, m.Alerting())
}

func TestNewMachineWith_Defaults(t *testing.T) {
	m := NewMachineWith(0, 0)
	assert.Equal(t, EARThreshold, m.threshold)
	assert.Equal(t, AlertDelay, m.delay)

	m = NewMachineWith(0.25, 500*time.Millisecond)
	m.Update(0.2, at(0))
	got, _ := m.Update(0.2, at(600*time.Millisecond))
	assert.True(t, got)
}

func TestAverageEAR(t *testing.T) {
	assert.InDelta(t, 0.3, AverageEAR(0.2, 0.4), 1e-12)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name    string
		faces   int
		isAlert bool
		want    Status
		text    string
	}{
		{name: "no faces", faces: 0, want: StatusNoFace, text: "NO FACE"},
		{name: "no faces ignores stale flag", faces: 0, isAlert: true, want: StatusNoFace, text: "NO FACE"},
		{name: "single clear", faces: 1, want: StatusClear, text: "0"},
		{name: "single alert", faces: 1, isAlert: true, want: StatusAlert, text: "1"},
		{name: "multiple faces", faces: 3, isAlert: true, want: StatusMultiFace, text: "MULTI FACE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StatusOf(tt.faces, tt.isAlert)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.text, got.String())
		})
	}
}

func TestEvent_Closed(t *testing.T) {
	e := Event{WindowStart: at(0), TriggeredAt: at(2500 * time.Millisecond)}
	assert.Equal(t, 2500*time.Millisecond, e.Closed())
}
