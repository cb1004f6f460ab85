package fps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimator_FirstTickPrimes(t *testing.T) {
	e := NewEstimator()

	rate, ok := e.Tick(time.Now())
	assert.False(t, ok)
	assert.Zero(t, rate)
}

func TestEstimator_UniformInterval(t *testing.T) {
	e := NewEstimator()
	base := time.Unix(1700000000, 0)

	_, ok := e.Tick(base)
	require.False(t, ok, "priming tick must not report a rate")

	for i := 1; i <= HistorySize; i++ {
		rate, ok := e.Tick(base.Add(time.Duration(i) * 100 * time.Millisecond))
		if i < HistorySize {
			assert.Falsef(t, ok, "tick %d should not be available yet", i)
			continue
		}
		require.Truef(t, ok, "tick %d should report a rate", i)
		assert.InDelta(t, 10.0, rate, 1e-9)
	}
}

func TestEstimator_MovingWindow(t *testing.T) {
	e := NewEstimator()
	now := time.Unix(1700000000, 0)
	e.Tick(now)

	// Fill with 50ms intervals (20 fps).
	for i := 0; i < HistorySize; i++ {
		now = now.Add(50 * time.Millisecond)
		e.Tick(now)
	}

	// Five 100ms intervals replace half the window: (5*20 + 5*10) / 10 = 15.
	var rate float64
	var ok bool
	for i := 0; i < 5; i++ {
		now = now.Add(100 * time.Millisecond)
		rate, ok = e.Tick(now)
	}
	require.True(t, ok)
	assert.InDelta(t, 15.0, rate, 1e-9)
}

func TestEstimator_JitterStaysFinite(t *testing.T) {
	e := NewEstimator()
	now := time.Unix(1700000000, 0)
	e.Tick(now)

	intervals := []time.Duration{
		33 * time.Millisecond, 0, 40 * time.Millisecond, 25 * time.Millisecond,
		-5 * time.Millisecond, 35 * time.Millisecond, 30 * time.Millisecond,
		33 * time.Millisecond, 34 * time.Millisecond, 32 * time.Millisecond,
		31 * time.Millisecond, 36 * time.Millisecond,
	}

	var rate float64
	var ok bool
	for _, d := range intervals {
		now = now.Add(d)
		rate, ok = e.Tick(now)
	}

	require.True(t, ok)
	assert.Greater(t, rate, 20.0)
	assert.Less(t, rate, 45.0)
}

func TestEstimator_Reset(t *testing.T) {
	e := NewEstimator()
	now := time.Unix(1700000000, 0)
	for i := 0; i <= HistorySize; i++ {
		e.Tick(now.Add(time.Duration(i) * 100 * time.Millisecond))
	}

	e.Reset()

	_, ok := e.Tick(now)
	assert.False(t, ok)
}
