package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/nidra/internal/app"
	"github.com/ayusman/nidra/internal/capture"
	"github.com/ayusman/nidra/internal/detector"
	"github.com/ayusman/nidra/internal/store"
	"github.com/ayusman/nidra/testdata"
	"github.com/gorilla/websocket"
)

type frameClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *frameClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestAPI_DrowsinessWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	frames := testdata.Frames(2)
	defer testdata.CloseAll(frames)
	cam := capture.NewMockCamera(frames, true)
	cam.SetFPS(100)

	script := append([][]detector.Face{testdata.Open()}, testdata.Repeat(testdata.ClosedEyes(), 4)...)
	det := testdata.NewSequenceDetector(script...)

	monitor := app.New(app.Config{
		Store:        s,
		Factory:      det.Factory(),
		Accelerators: func() int { return 0 },
		Opener:       capture.MockOpener(cam),
		Clock:        (&frameClock{t: time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)}).Now,
	})
	defer monitor.Teardown()

	alerts := NewAlertHub()
	frameHub := NewFrameHub()
	monitor.AddSink(alerts)
	monitor.AddOutput(frameHub)
	if err := monitor.Init(app.Chain(alerts, app.LogNotifier{})); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ts := httptest.NewServer(New(Config{Store: s, Monitor: monitor, Frames: frameHub, Alerts: alerts}))
	defer ts.Close()
	client := ts.Client()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	defer conn.Close()
	for deadline := time.Now().Add(time.Second); alerts.Clients() == 0 && time.Now().Before(deadline); {
		time.Sleep(5 * time.Millisecond)
	}

	post := func(path, body string) *http.Response {
		t.Helper()
		resp, err := client.Post(ts.URL+path, "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("POST %s error = %v", path, err)
		}
		return resp
	}

	// 1. Load a model
	resp := post("/api/model", `{"id": 3, "backend": 0}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/model status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// 2. Open the front camera
	resp = post("/api/camera", `{"facing": 0}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/camera status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// 3. The alert raise is pushed over the websocket
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read websocket message: %v", err)
	}
	if m.Type != MessageAlert {
		t.Fatalf("message type = %q, want %q", m.Type, MessageAlert)
	}
	if m.Model != "facemesh/192@cpu" {
		t.Errorf("message model = %q", m.Model)
	}

	// 4. Query the alert; the status is also forwarded to websocket clients
	resp, err = client.Get(ts.URL + "/api/alert")
	if err != nil {
		t.Fatalf("GET /api/alert error = %v", err)
	}
	var queried struct {
		Alert string `json:"alert"`
	}
	json.NewDecoder(resp.Body).Decode(&queried)
	resp.Body.Close()
	if queried.Alert != "1" {
		t.Errorf("alert = %q, want \"1\"", queried.Alert)
	}

	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read websocket status: %v", err)
	}
	if m.Type != MessageStatus || m.Status != "1" {
		t.Errorf("status message = %+v", m)
	}

	// 5. Close the camera
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/camera", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("DELETE /api/camera error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE /api/camera status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	// 6. The raise was recorded
	resp, err = client.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events error = %v", err)
	}
	var listed struct {
		Events []struct {
			ClosedMs int64  `json:"closed_ms"`
			Model    string `json:"model"`
		} `json:"events"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(listed.Events))
	}
	if listed.Events[0].ClosedMs != 3000 {
		t.Errorf("closed_ms = %d, want 3000", listed.Events[0].ClosedMs)
	}
}
