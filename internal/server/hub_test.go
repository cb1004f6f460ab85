package server

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/nidra/internal/alert"
	"github.com/ayusman/nidra/testdata"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *AlertHub) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(hub)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestAlertHub_NotifyForwardsStatus(t *testing.T) {
	hub := NewAlertHub()
	conn := dialHub(t, hub)

	got := hub.Notify("NO FACE")

	assert.Equal(t, "NO FACE", got, "notify must return the status unchanged")
	m := readMessage(t, conn)
	assert.Equal(t, MessageStatus, m.Type)
	assert.Equal(t, "NO FACE", m.Status)
	assert.NotZero(t, m.Timestamp)
}

func TestAlertHub_AlertRaised(t *testing.T) {
	hub := NewAlertHub()
	conn := dialHub(t, hub)

	start := time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)
	hub.AlertRaised(alert.Event{
		WindowStart: start,
		TriggeredAt: start.Add(3 * time.Second),
		AvgEAR:      0.12,
		Model:       "blazeface/320@cpu",
	})

	m := readMessage(t, conn)
	assert.Equal(t, MessageAlert, m.Type)
	assert.Equal(t, "1", m.Status)
	assert.Equal(t, int64(3000), m.ClosedMs)
	require.NotNil(t, m.AvgEAR)
	assert.InDelta(t, 0.12, *m.AvgEAR, 1e-9)
}

func TestAlertHub_NoClients(t *testing.T) {
	hub := NewAlertHub()
	assert.NotPanics(t, func() { hub.Notify("0") })
	assert.Zero(t, hub.Clients())
}

func TestFrameHub_SkipsEncodingWithoutClients(t *testing.T) {
	hub := NewFrameHub()
	frame := testdata.Frame()
	defer frame.Close()

	assert.NoError(t, hub.Show(frame))
	assert.NoError(t, hub.Show(nil))
}

func TestFrameHub_LatestFrameWins(t *testing.T) {
	hub := NewFrameHub()
	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	hub.publish([]byte("old"))
	hub.publish([]byte("new"))

	assert.Equal(t, []byte("new"), <-ch)
}

func TestFrameHub_StreamsJPEG(t *testing.T) {
	hub := NewFrameHub()
	ts := httptest.NewServer(hub)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	frame := testdata.Frame()
	defer frame.Close()
	require.NoError(t, hub.Show(frame))

	r := bufio.NewReader(resp.Body)
	boundary, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", boundary)

	contentType, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Type: image/jpeg\r\n", contentType)

	// skip Content-Length and the blank line, then check the JPEG magic
	_, err = r.ReadString('\n')
	require.NoError(t, err)
	_, err = r.ReadString('\n')
	require.NoError(t, err)
	magic := make([]byte, 2)
	_, err = r.Read(magic)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(magic, []byte{0xFF, 0xD8}), "expected JPEG start of image")
}

func TestFrameHub_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/stream", nil)
	rec := httptest.NewRecorder()

	NewFrameHub().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
