package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// FrameHub republishes rendered frames as an MJPEG stream.
//
// It is a capture.Output: the capture goroutine calls Show for every frame,
// and each connected client receives the most recent JPEG. Slow clients skip
// frames instead of stalling capture.
type FrameHub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewFrameHub creates a hub with no clients.
func NewFrameHub() *FrameHub {
	return &FrameHub{clients: make(map[chan []byte]struct{})}
}

// Show encodes frame once and offers it to every client.
func (h *FrameHub) Show(frame *gocv.Mat) error {
	if frame == nil || frame.Empty() || h.Clients() == 0 {
		return nil
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return fmt.Errorf("encode stream frame: %w", err)
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	h.publish(data)
	return nil
}

func (h *FrameHub) publish(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// drop the stale frame and offer the new one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- data:
			default:
			}
		}
	}
}

// Clients returns the number of connected stream clients.
func (h *FrameHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *FrameHub) subscribe() chan []byte {
	ch := make(chan []byte, 1)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *FrameHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// ServeHTTP streams MJPEG frames until the client disconnects.
func (h *FrameHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	ch := h.subscribe()
	defer h.unsubscribe(ch)
	log.Debug().Str("remote", r.RemoteAddr).Msg("Stream client connected")

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("remote", r.RemoteAddr).Msg("Stream client disconnected")
			return
		case data := <-ch:
			if err := writePart(w, data); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}
