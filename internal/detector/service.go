package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// DefaultStartTimeout bounds how long a detector service may take to report ready.
const DefaultStartTimeout = 30 * time.Second

// closeTimeout bounds how long Close waits for the service to exit after
// stdin is closed before killing it.
const closeTimeout = 2 * time.Second

// ServiceConfig locates the face landmark service and its model weights.
type ServiceConfig struct {
	// Script is the path to face_service.py. Empty searches the usual locations.
	Script string
	// Python is the interpreter. Empty prefers a virtual environment, then python3.
	Python string
	// ModelDir holds one weights directory per model family.
	ModelDir string
	// StartTimeout bounds the ready handshake. Zero uses DefaultStartTimeout.
	StartTimeout time.Duration
}

// ServiceDetector implements Detector using a Python face landmark subprocess.
//
// Wire protocol:
//   - request: 4 byte big-endian length followed by a JPEG encoded frame
//   - response: one JSON line {"faces": [...]} or {"error": "..."}
//
// The process is started eagerly so that a missing script, interpreter or
// model surfaces as an init error rather than on the first frame.
type ServiceDetector struct {
	model  ModelConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
	closed bool
}

// NewServiceFactory returns a Factory that starts a ServiceDetector per load.
func NewServiceFactory(sc ServiceConfig) Factory {
	return func(cfg ModelConfig) (Detector, error) {
		return NewServiceDetector(sc, cfg)
	}
}

// NewServiceDetector starts the face service for cfg and waits for its ready line.
func NewServiceDetector(sc ServiceConfig, cfg ModelConfig) (*ServiceDetector, error) {
	scriptPath := sc.Script
	if scriptPath == "" {
		scriptPath = findServiceScript()
	}
	if scriptPath == "" {
		return nil, fmt.Errorf("%w: face_service.py not found", ErrInit)
	}

	// Use virtual environment Python if available
	pythonPath := sc.Python
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	modelDir := sc.ModelDir
	if modelDir == "" {
		modelDir = "models"
	}

	cmd := exec.Command(pythonPath, scriptPath,
		"--model", cfg.ModelPath(modelDir),
		"--family", cfg.Family,
		"--size", strconv.Itoa(cfg.TargetSize),
		"--backend", cfg.Backend.String(),
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: create stdin pipe: %w", ErrInit, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: create stdout pipe: %w", ErrInit, err)
	}

	// Capture stderr for debugging
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start face service: %w", ErrInit, err)
	}

	d := &ServiceDetector{
		model:  cfg,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}

	timeout := sc.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}
	if err := d.awaitReady(timeout); err != nil {
		// A service that failed the handshake may never read stdin again.
		d.kill()
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}

	log.Info().
		Str("model", cfg.String()).
		Str("script", scriptPath).
		Int("pid", cmd.Process.Pid).
		Msg("Face service started")
	return d, nil
}

// awaitReady reads the handshake line written by the service after loading weights.
func (d *ServiceDetector) awaitReady(timeout time.Duration) error {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	reader := d.stdout
	go func() {
		line, err := reader.ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("read ready line: %w", r.err)
		}
		var hello struct {
			Ready bool   `json:"ready"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(r.line), &hello); err != nil {
			return fmt.Errorf("parse ready line: %w", err)
		}
		if hello.Error != "" {
			return fmt.Errorf("face service: %s", hello.Error)
		}
		if !hello.Ready {
			return errors.New("face service did not report ready")
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("face service not ready after %s", timeout)
	}
}

// Detect sends the frame to the service and returns the detected faces.
func (d *ServiceDetector) Detect(frame *gocv.Mat) ([]Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%w: detector closed", ErrDetection)
	}
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("%w: encode frame: %w", ErrDetection, err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("%w: write length: %w", ErrDetection, err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("%w: write data: %w", ErrDetection, err)
	}

	// Read JSON response
	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrDetection, err)
	}

	return parseResponse([]byte(line))
}

// Close shuts down the Python process.
func (d *ServiceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.stdin != nil {
		d.stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- d.cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(closeTimeout):
		log.Warn().Int("pid", d.cmd.Process.Pid).Msg("Face service did not exit, killing it")
		d.cmd.Process.Kill()
		err = <-done
	}
	d.stdin = nil
	d.stdout = nil
	return err
}

// kill stops the process without waiting for it to drain stdin.
func (d *ServiceDetector) kill() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true

	d.stdin.Close()
	d.cmd.Process.Kill()
	d.cmd.Wait()
	d.stdin = nil
	d.stdout = nil
}

// Model returns the config the service was started with.
func (d *ServiceDetector) Model() ModelConfig {
	return d.model
}

// parseResponse decodes one response line into faces.
func parseResponse(line []byte) ([]Face, error) {
	var response struct {
		Faces []jsonFace `json:"faces"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrDetection, err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrDetection, response.Error)
	}

	faces := make([]Face, len(response.Faces))
	for i, f := range response.Faces {
		faces[i] = f.toFace()
	}
	return faces, nil
}

func findServiceScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/face_service.py",
		"../scripts/face_service.py",
		filepath.Join(execDir, "scripts/face_service.py"),
		filepath.Join(os.Getenv("HOME"), ".nidra/scripts/face_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".nidra/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonFace represents the JSON structure from the Python service.
// Box is [x, y, width, height] in frame pixels.
type jsonFace struct {
	Box      [4]float64   `json:"box"`
	Score    float64      `json:"score"`
	LeftEye  [][2]float64 `json:"left_eye"`
	RightEye [][2]float64 `json:"right_eye"`
	EARLeft  *float64     `json:"ear_left"`
	EARRight *float64     `json:"ear_right"`
}

func (j jsonFace) toFace() Face {
	x, y, w, h := int(j.Box[0]), int(j.Box[1]), int(j.Box[2]), int(j.Box[3])
	f := Face{
		Box:   image.Rect(x, y, x+w, y+h),
		Score: j.Score,
	}

	left, okL := toEye(j.LeftEye)
	right, okR := toEye(j.RightEye)
	if okL && okR {
		f.SetEyes(left, right)
	}

	// Ratios computed by the service take precedence over contour geometry.
	if j.EARLeft != nil {
		f.EARLeft = *j.EARLeft
	}
	if j.EARRight != nil {
		f.EARRight = *j.EARRight
	}
	return f
}

func toEye(points [][2]float64) (Eye, bool) {
	var e Eye
	if len(points) != NumEyePoints {
		return e, false
	}
	for i, p := range points {
		e[i] = Point{X: p[0], Y: p[1]}
	}
	return e, true
}
