// Package hook runs external programs when a drowsiness alert is raised.
//
// Each hook lives in its own directory under the hooks directory and is
// described by a hook.json manifest. On every alert the hook's executable
// receives a Request as JSON on stdin and answers with a Response on stdout.
package hook

import (
	"encoding/json"
	"time"

	"github.com/ayusman/nidra/internal/alert"
)

// ManifestFile is the manifest name looked up in every hook directory.
const ManifestFile = "hook.json"

// EventAlert is the only event hooks currently receive.
const EventAlert = "alert"

// Manifest describes a hook's metadata.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Alert is the alert payload handed to a hook.
type Alert struct {
	WindowStart time.Time `json:"window_start"`
	TriggeredAt time.Time `json:"triggered_at"`
	ClosedMs    int64     `json:"closed_ms"`
	AvgEAR      float64   `json:"avg_ear"`
	Model       string    `json:"model"`
}

// Request is written to the hook's stdin.
type Request struct {
	Event  string          `json:"event"`
	Alert  Alert           `json:"alert"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response is read from the hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// NewRequest builds the request for an alert event and a hook's config.
func NewRequest(e alert.Event, config json.RawMessage) *Request {
	return &Request{
		Event: EventAlert,
		Alert: Alert{
			WindowStart: e.WindowStart.UTC(),
			TriggeredAt: e.TriggeredAt.UTC(),
			ClosedMs:    e.Closed().Milliseconds(),
			AvgEAR:      e.AvgEAR,
			Model:       e.Model,
		},
		Config: config,
	}
}
