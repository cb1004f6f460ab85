package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/nidra/internal/app"
	"github.com/ayusman/nidra/internal/capture"
	"github.com/ayusman/nidra/internal/detector"
)

// Monitor is the command surface the control handlers drive.
type Monitor interface {
	LoadModel(modelID, backend int) bool
	UnloadModel()
	OpenCamera(facing int) bool
	CloseCamera() bool
	QueryAlert() string
	Snapshot() app.Status
}

// ControlHandler serves the alert query, status, model and camera endpoints.
type ControlHandler struct {
	monitor Monitor
}

// NewControlHandler creates a ControlHandler for m.
func NewControlHandler(m Monitor) *ControlHandler {
	return &ControlHandler{monitor: m}
}

// Register mounts the control endpoints on mux.
func (h *ControlHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/alert", h.handleAlert)
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/model", h.handleModel)
	mux.HandleFunc("/api/camera", h.handleCamera)
}

type alertResponse struct {
	Alert string `json:"alert"`
}

type modelSpec struct {
	ID         int    `json:"id"`
	Family     string `json:"family"`
	TargetSize int    `json:"target_size"`
}

type modelsResponse struct {
	Models  []modelSpec `json:"models"`
	Current string      `json:"current,omitempty"`
}

type loadModelRequest struct {
	ID      *int `json:"id"`
	Backend int  `json:"backend"`
}

type loadModelResponse struct {
	Loaded bool   `json:"loaded"`
	Model  string `json:"model,omitempty"`
}

type cameraRequest struct {
	Facing *int `json:"facing"`
}

type cameraResponse struct {
	Open   bool   `json:"open"`
	Facing string `json:"facing,omitempty"`
}

// handleAlert handles GET /api/alert. The result passes through the notifier.
func (h *ControlHandler) handleAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, alertResponse{Alert: h.monitor.QueryAlert()})
}

// handleStatus handles GET /api/status.
func (h *ControlHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.monitor.Snapshot())
}

// handleModel lists the model table (GET), loads a model (POST) or unloads it (DELETE).
func (h *ControlHandler) handleModel(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		response := modelsResponse{
			Models:  make([]modelSpec, 0, len(detector.Models)),
			Current: h.monitor.Snapshot().Model,
		}
		for _, m := range detector.Models {
			response.Models = append(response.Models, modelSpec{ID: m.ID, Family: m.Family, TargetSize: m.TargetSize})
		}
		writeJSON(w, http.StatusOK, response)

	case http.MethodPost:
		var req loadModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.ID == nil {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		if _, err := detector.ConfigFor(*req.ID, req.Backend); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !h.monitor.LoadModel(*req.ID, req.Backend) {
			writeError(w, http.StatusInternalServerError, "Failed to load model")
			return
		}
		model := h.monitor.Snapshot().Model
		writeJSON(w, http.StatusOK, loadModelResponse{Loaded: model != "", Model: model})

	case http.MethodDelete:
		h.monitor.UnloadModel()
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCamera opens (POST) or closes (DELETE) the camera.
func (h *ControlHandler) handleCamera(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s := h.monitor.Snapshot()
		writeJSON(w, http.StatusOK, cameraResponse{Open: s.CameraOpen, Facing: s.Facing})

	case http.MethodPost:
		var req cameraRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Facing == nil || !capture.Facing(*req.Facing).Valid() {
			writeError(w, http.StatusBadRequest, "facing must be 0 (front) or 1 (back)")
			return
		}
		if !h.monitor.OpenCamera(*req.Facing) {
			writeError(w, http.StatusInternalServerError, "Failed to open camera")
			return
		}
		writeJSON(w, http.StatusOK, cameraResponse{Open: true, Facing: capture.Facing(*req.Facing).String()})

	case http.MethodDelete:
		if !h.monitor.CloseCamera() {
			writeError(w, http.StatusInternalServerError, "Failed to close camera")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
